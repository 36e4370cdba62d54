package transaction

// transitions lists every legal (kind, status, action) triple. Anything not
// in the table is an illegal transition. Terminal statuses have no row.
var transitions = map[Kind]map[Status]map[Action]Status{
	KindGoodsReceipt: {
		StatusDraft: {
			ActionPost:   StatusPosted,
			ActionCancel: StatusCancelled,
		},
	},
	KindDeliveryNote: {
		StatusDraft: {
			ActionPost:   StatusInTransit,
			ActionCancel: StatusCancelled,
		},
		StatusInTransit: {
			// fulfill posts pending dropship lines without changing status
			ActionFulfill: StatusInTransit,
			ActionDeliver: StatusDelivered,
		},
	},
	KindTransfer: {
		StatusDraft: {
			ActionPost:   StatusInTransit,
			ActionCancel: StatusCancelled,
		},
		StatusInTransit: {
			ActionDeliver: StatusDelivered,
		},
	},
	KindPurchaseReturn: {
		StatusDraft: {
			ActionApprove: StatusApproved,
			ActionCancel:  StatusCancelled,
		},
		StatusApproved: {
			ActionComplete: StatusCompleted,
		},
	},
	KindSalesReturn: {
		StatusDraft: {
			ActionApprove: StatusApproved,
			ActionCancel:  StatusCancelled,
		},
		StatusApproved: {
			ActionComplete: StatusCompleted,
		},
	},
}

// CanTransition reports whether the action is legal from the current status.
func CanTransition(kind Kind, current Status, action Action) bool {
	_, ok := transitions[kind][current][action]
	return ok
}

// Transition returns the next status or an illegal-transition error.
func Transition(kind Kind, current Status, action Action) (Status, error) {
	next, ok := transitions[kind][current][action]
	if !ok {
		return current, NewIllegalTransition(kind, current, action)
	}
	return next, nil
}

// Actions lists the legal actions from a status, used by list screens to
// render buttons without guessing.
func Actions(kind Kind, current Status) []Action {
	table, ok := transitions[kind][current]
	if !ok {
		return nil
	}
	actions := make([]Action, 0, len(table))
	for _, candidate := range []Action{ActionPost, ActionApprove, ActionComplete, ActionFulfill, ActionDeliver, ActionCancel} {
		if _, ok := table[candidate]; ok {
			actions = append(actions, candidate)
		}
	}
	return actions
}
