package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	alerts "flowdistributor/internal/alerts/domain"
	ledger "flowdistributor/internal/ledger/domain"
)

// Account declares one cash vault.
type Account struct {
	ID          string            `yaml:"id"`
	DisplayName string            `yaml:"display_name"`
	Thresholds  alerts.Thresholds `yaml:"thresholds"`
}

// File is the YAML configuration.
type File struct {
	Accounts   []Account         `yaml:"accounts"`
	Thresholds alerts.Thresholds `yaml:"thresholds"`
}

// DefaultAccounts are the vaults of the dashboard.
func DefaultAccounts() []Account {
	return []Account{
		{ID: "monte", DisplayName: "Bóveda Monte"},
		{ID: "usa", DisplayName: "Bóveda USA"},
		{ID: "azteca", DisplayName: "Azteca"},
		{ID: "utilidades", DisplayName: "Utilidades"},
		{ID: "fletes", DisplayName: "Flete Sur"},
		{ID: "leftie", DisplayName: "Leftie"},
		{ID: "profit", DisplayName: "Profit"},
	}
}

// LoadFile reads path; an empty path yields the defaults.
func LoadFile(path string) (File, error) {
	file := File{
		Accounts:   DefaultAccounts(),
		Thresholds: alerts.DefaultThresholds(),
	}
	if path == "" {
		return file, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed File
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return file, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(parsed.Accounts) > 0 {
		file.Accounts = parsed.Accounts
	}
	file.Thresholds = file.Thresholds.Merge(parsed.Thresholds)
	if err := file.Thresholds.Validate(); err != nil {
		return file, fmt.Errorf("config: %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(file.Accounts))
	for i, account := range file.Accounts {
		if account.ID == "" {
			return file, fmt.Errorf("config: %s: account %d without id", path, i)
		}
		if _, dup := seen[account.ID]; dup {
			return file, fmt.Errorf("config: %s: duplicate account %s", path, account.ID)
		}
		seen[account.ID] = struct{}{}
		if err := file.ThresholdsFor(account.ID).Validate(); err != nil {
			return file, fmt.Errorf("config: %s: account %s: %w", path, account.ID, err)
		}
	}
	return file, nil
}

// ThresholdsFor returns the global thresholds merged with the account override.
// An empty or unknown id returns the global thresholds.
func (f File) ThresholdsFor(accountID string) alerts.Thresholds {
	for _, account := range f.Accounts {
		if account.ID == accountID {
			return f.Thresholds.Merge(account.Thresholds)
		}
	}
	return f.Thresholds
}

// Collections lists every document collection the engine subscribes to.
func (f File) Collections() []string {
	out := []string{
		ledger.CollectionAccounts,
		ledger.CollectionClients,
		ledger.CollectionSales,
		ledger.CollectionPurchaseOrders,
		ledger.CollectionProducts,
		ledger.CollectionDistributors,
		ledger.CollectionTransfers,
	}
	for _, account := range f.Accounts {
		out = append(out, ledger.IncomeCollection(account.ID), ledger.ExpenseCollection(account.ID))
	}
	return out
}
