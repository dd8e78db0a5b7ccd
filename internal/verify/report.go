// Package verify inspects the remote document store and writes the
// FIRESTORE_ESTADO_ACTUAL.json status report.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"flowdistributor/internal/docstore"
)

const (
	// ReportFile is written under the project root.
	ReportFile = "FIRESTORE_ESTADO_ACTUAL.json"
	// SampleThreshold is the largest count for which samples are fetched.
	SampleThreshold = 5
	// SampleLimit caps the samples per collection.
	SampleLimit = 3

	StateEmpty    = "VACÍA"
	StateWithData = "CON DATOS"
)

// Inspector is the read side of the document store used by the report.
type Inspector interface {
	Count(ctx context.Context, collection string) (int64, error)
	Sample(ctx context.Context, collection string, limit int) ([]docstore.Document, error)
}

// CollectionReport is the state of one collection.
type CollectionReport struct {
	Nombre     string           `json:"nombre"`
	Documentos int64            `json:"documentos"`
	Estado     string           `json:"estado"`
	Ejemplos   []map[string]any `json:"ejemplos,omitempty"`
}

// Summary totals the collections.
type Summary struct {
	TotalColecciones    int   `json:"totalColecciones"`
	ColeccionesConDatos int   `json:"coleccionesConDatos"`
	ColeccionesVacias   int   `json:"coleccionesVacias"`
	TotalDocumentos     int64 `json:"totalDocumentos"`
}

// Expected lists the collections the dashboard needs and those still empty.
type Expected struct {
	Colecciones []string `json:"colecciones"`
	Faltantes   []string `json:"faltantes"`
}

// Report is the JSON document written to ReportFile.
type Report struct {
	Fecha          time.Time          `json:"fecha"`
	Colecciones    []CollectionReport `json:"colecciones"`
	Resumen        Summary            `json:"resumen"`
	DatosEsperados Expected           `json:"datosEsperados"`
}

// Run counts every collection and samples the small ones. Any store error
// aborts the run; no partial report is returned.
func Run(ctx context.Context, store Inspector, collections []string, now time.Time) (Report, error) {
	if store == nil {
		return Report{}, errors.New("verify: nil store")
	}
	if len(collections) == 0 {
		return Report{}, errors.New("verify: no collections")
	}
	report := Report{
		Fecha:          now,
		Colecciones:    make([]CollectionReport, 0, len(collections)),
		DatosEsperados: Expected{Colecciones: append([]string(nil), collections...), Faltantes: []string{}},
	}
	for _, name := range collections {
		count, err := store.Count(ctx, name)
		if err != nil {
			return Report{}, fmt.Errorf("verify: count %s: %w", name, err)
		}
		entry := CollectionReport{Nombre: name, Documentos: count, Estado: StateWithData}
		if count == 0 {
			entry.Estado = StateEmpty
			report.DatosEsperados.Faltantes = append(report.DatosEsperados.Faltantes, name)
		}
		if count > 0 && count <= SampleThreshold {
			docs, err := store.Sample(ctx, name, SampleLimit)
			if err != nil {
				return Report{}, fmt.Errorf("verify: sample %s: %w", name, err)
			}
			for _, doc := range docs {
				entry.Ejemplos = append(entry.Ejemplos, flatten(doc))
			}
		}
		report.Colecciones = append(report.Colecciones, entry)

		report.Resumen.TotalColecciones++
		report.Resumen.TotalDocumentos += count
		if count == 0 {
			report.Resumen.ColeccionesVacias++
		} else {
			report.Resumen.ColeccionesConDatos++
		}
	}
	return report, nil
}

func flatten(doc docstore.Document) map[string]any {
	out := make(map[string]any, len(doc.Data)+1)
	for k, v := range doc.Data {
		out[k] = v
	}
	out["id"] = doc.ID
	return out
}

// WriteFile writes the report to root/ReportFile through a temporary file
// so a failed write never leaves a partial report.
func WriteFile(root string, report Report) (string, error) {
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("verify: encode report: %w", err)
	}
	tmp, err := os.CreateTemp(root, ".verify-*.json")
	if err != nil {
		return "", fmt.Errorf("verify: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("verify: write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("verify: close report: %w", err)
	}
	path := filepath.Join(root, ReportFile)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("verify: rename report: %w", err)
	}
	return path, nil
}

// Print writes the human-readable report.
func Print(w io.Writer, report Report) {
	fmt.Fprintf(w, "Estado del almacén de documentos (%s)\n", report.Fecha.Format(time.RFC3339))
	fmt.Fprintln(w, "==========================================")
	for _, c := range report.Colecciones {
		fmt.Fprintf(w, "%-24s %6d  %s\n", c.Nombre, c.Documentos, c.Estado)
		for _, sample := range c.Ejemplos {
			fmt.Fprintf(w, "    - %s\n", describe(sample))
		}
	}
	fmt.Fprintln(w, "------------------------------------------")
	fmt.Fprintf(w, "Colecciones: %d (con datos %d, vacías %d)\n",
		report.Resumen.TotalColecciones, report.Resumen.ColeccionesConDatos, report.Resumen.ColeccionesVacias)
	fmt.Fprintf(w, "Documentos:  %d\n", report.Resumen.TotalDocumentos)
	if len(report.DatosEsperados.Faltantes) > 0 {
		fmt.Fprintf(w, "Sin datos:   %v\n", report.DatosEsperados.Faltantes)
	}
}

func describe(sample map[string]any) string {
	keys := make([]string, 0, len(sample))
	for k := range sample {
		if k != "id" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return fmt.Sprintf("%v %v", sample["id"], keys)
}
