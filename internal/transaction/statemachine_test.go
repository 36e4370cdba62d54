package transaction

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPaths(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		current Status
		action  Action
		want    Status
	}{
		{"goods receipt post", KindGoodsReceipt, StatusDraft, ActionPost, StatusPosted},
		{"goods receipt cancel", KindGoodsReceipt, StatusDraft, ActionCancel, StatusCancelled},
		{"delivery note post", KindDeliveryNote, StatusDraft, ActionPost, StatusInTransit},
		{"delivery note fulfill keeps status", KindDeliveryNote, StatusInTransit, ActionFulfill, StatusInTransit},
		{"delivery note deliver", KindDeliveryNote, StatusInTransit, ActionDeliver, StatusDelivered},
		{"transfer post", KindTransfer, StatusDraft, ActionPost, StatusInTransit},
		{"transfer deliver", KindTransfer, StatusInTransit, ActionDeliver, StatusDelivered},
		{"purchase return approve", KindPurchaseReturn, StatusDraft, ActionApprove, StatusApproved},
		{"purchase return complete", KindPurchaseReturn, StatusApproved, ActionComplete, StatusCompleted},
		{"sales return approve", KindSalesReturn, StatusDraft, ActionApprove, StatusApproved},
		{"sales return complete", KindSalesReturn, StatusApproved, ActionComplete, StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.kind, tc.current, tc.action)
			require.NoError(t, err)
			require.Equal(t, tc.want, next)
		})
	}
}

func TestTransitionIllegal(t *testing.T) {
	cases := []struct {
		name    string
		kind    Kind
		current Status
		action  Action
	}{
		{"post already posted receipt", KindGoodsReceipt, StatusPosted, ActionPost},
		{"cancel posted receipt", KindGoodsReceipt, StatusPosted, ActionCancel},
		{"deliver draft delivery note", KindDeliveryNote, StatusDraft, ActionDeliver},
		{"fulfill delivered note", KindDeliveryNote, StatusDelivered, ActionFulfill},
		{"cancel in-transit transfer", KindTransfer, StatusInTransit, ActionCancel},
		{"approve on goods receipt", KindGoodsReceipt, StatusDraft, ActionApprove},
		{"complete draft return", KindSalesReturn, StatusDraft, ActionComplete},
		{"anything from cancelled", KindTransfer, StatusCancelled, ActionPost},
		{"anything from completed", KindPurchaseReturn, StatusCompleted, ActionCancel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Transition(tc.kind, tc.current, tc.action)
			require.Error(t, err)
			domainErr, ok := AsError(err)
			require.True(t, ok)
			require.Equal(t, KindIllegalTransition, domainErr.Kind)
			require.Equal(t, 409, domainErr.HTTPStatus())
		})
	}
}

func TestTerminalStatusesHaveNoActions(t *testing.T) {
	for _, kind := range []Kind{KindGoodsReceipt, KindDeliveryNote, KindTransfer, KindPurchaseReturn, KindSalesReturn} {
		for _, status := range []Status{StatusCancelled, StatusCompleted, StatusDelivered, StatusPosted} {
			require.Empty(t, Actions(kind, status), "kind %s status %s", kind, status)
		}
	}
}

func TestActionsOrdering(t *testing.T) {
	require.Equal(t, []Action{ActionFulfill, ActionDeliver}, Actions(KindDeliveryNote, StatusInTransit))
	require.Equal(t, []Action{ActionPost, ActionCancel}, Actions(KindGoodsReceipt, StatusDraft))
}
