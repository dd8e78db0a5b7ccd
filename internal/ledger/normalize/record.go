package normalize

import ledger "flowdistributor/internal/ledger/domain"

// RecordKind tags the known raw record shapes coming from the document store.
type RecordKind string

const (
	KindIncome        RecordKind = "income"
	KindExpense       RecordKind = "expense"
	KindSale          RecordKind = "sale"
	KindPurchaseOrder RecordKind = "purchase_order"
	// KindTransfer is a GYA record; its direction comes from the record itself.
	KindTransfer RecordKind = "transfer"
)

// Resolvers lists, per canonical field, the candidate raw field names in
// priority order. The first present and coercible candidate wins.
type Resolvers struct {
	Amount      []string
	Date        []string
	Status      []string
	Counterpart []string
	Note        []string
	Direction   []string
}

var (
	dateCandidates   = []string{"fecha", "date", "createdAt", "timestamp"}
	statusCandidates = []string{"estado", "status"}
	noteCandidates   = []string{"concepto", "descripcion", "nota", "notes"}
)

var defaultResolvers = map[RecordKind]Resolvers{
	KindIncome: {
		Amount:      []string{"ingreso", "monto", "cantidad", "total"},
		Date:        dateCandidates,
		Status:      statusCandidates,
		Counterpart: []string{"cliente", "origen"},
		Note:        noteCandidates,
	},
	KindExpense: {
		Amount:      []string{"gasto", "monto", "cantidad", "total"},
		Date:        dateCandidates,
		Status:      statusCandidates,
		Counterpart: []string{"proveedor", "destino"},
		Note:        noteCandidates,
	},
	KindSale: {
		Amount:      []string{"total", "monto", "precioTotal", "importe"},
		Date:        dateCandidates,
		Status:      statusCandidates,
		Counterpart: []string{"cliente", "clienteNombre"},
		Note:        noteCandidates,
	},
	KindPurchaseOrder: {
		Amount:      []string{"total", "monto", "costoTotal", "importe"},
		Date:        dateCandidates,
		Status:      statusCandidates,
		Counterpart: []string{"distribuidor", "proveedor"},
		Note:        noteCandidates,
	},
	KindTransfer: {
		Amount:      []string{"monto", "cantidad", "total"},
		Date:        dateCandidates,
		Status:      statusCandidates,
		Counterpart: []string{"origen", "destino"},
		Note:        noteCandidates,
		Direction:   []string{"tipo", "type"},
	},
}

// fixedDirection is the direction implied by the record kind, if any.
func fixedDirection(kind RecordKind) (ledger.Direction, bool) {
	switch kind {
	case KindIncome, KindSale:
		return ledger.DirectionIncome, true
	case KindExpense, KindPurchaseOrder:
		return ledger.DirectionExpense, true
	default:
		return "", false
	}
}

// ResolversFor returns a copy of the default resolvers for a kind.
func ResolversFor(kind RecordKind) (Resolvers, bool) {
	r, ok := defaultResolvers[kind]
	if !ok {
		return Resolvers{}, false
	}
	return r.clone(), true
}

func (r Resolvers) clone() Resolvers {
	return Resolvers{
		Amount:      append([]string(nil), r.Amount...),
		Date:        append([]string(nil), r.Date...),
		Status:      append([]string(nil), r.Status...),
		Counterpart: append([]string(nil), r.Counterpart...),
		Note:        append([]string(nil), r.Note...),
		Direction:   append([]string(nil), r.Direction...),
	}
}

// Master data candidates.
var (
	nameCandidates        = []string{"nombre", "name", "displayName"}
	debtCandidates        = []string{"deuda", "adeudo", "saldoPendiente", "debt"}
	lastPaymentCandidates = []string{"ultimoPago", "fechaUltimoPago", "lastPaymentAt", "lastPayment"}
	stockCandidates       = []string{"stock", "existencia", "cantidad"}
	snapshotCandidates    = []string{"rfActual", "saldoActual", "balance"}
)
