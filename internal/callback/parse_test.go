package callback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SuccessMetadata(t *testing.T) {
	body := `{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":"ws_CO_191220191020363925",
		"ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":1.00},
			{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
			{"Name":"Balance"},
			{"Name":"TransactionDate","Value":20191219102115},
			{"Name":"PhoneNumber","Value":254708374149}
		]}}}}`

	n, skipped, err := Parse([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "29115-34620561-1", n.MerchantRequestID)
	assert.Equal(t, "ws_CO_191220191020363925", n.CheckoutRequestID)
	assert.Equal(t, 0, n.ResultCode)
	require.NotNil(t, n.Amount)
	assert.Equal(t, 1.0, *n.Amount)
	require.NotNil(t, n.MpesaReceiptNumber)
	assert.Equal(t, "NLJ7RT61SV", *n.MpesaReceiptNumber)
	require.NotNil(t, n.TransactionDate)
	assert.Equal(t, "20191219102115", *n.TransactionDate)
	require.NotNil(t, n.PhoneNumber)
	assert.Equal(t, "254708374149", *n.PhoneNumber)
	assert.False(t, n.Read)
	assert.Empty(t, skipped)
}

func TestParse_FailureIgnoresMetadata(t *testing.T) {
	body := `{"Body":{"stkCallback":{
		"MerchantRequestID":"m","CheckoutRequestID":"c","ResultCode":1032,
		"ResultDesc":"Request cancelled by user",
		"CallbackMetadata":{"Item":[{"Name":"Amount","Value":10}]}}}}`

	n, skipped, err := Parse([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, 1032, n.ResultCode)
	assert.Nil(t, n.Amount)
	assert.Nil(t, n.MpesaReceiptNumber)
	assert.Nil(t, n.TransactionDate)
	assert.Nil(t, n.PhoneNumber)
	assert.Empty(t, skipped)
}

func TestParse_AmountAsString(t *testing.T) {
	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"c","ResultCode":0,
		"CallbackMetadata":{"Item":[{"Name":"Amount","Value":"75.50"},{"Name":"PhoneNumber","Value":null}]}}}}`

	n, skipped, err := Parse([]byte(body))
	require.NoError(t, err)
	require.NotNil(t, n.Amount)
	assert.Equal(t, 75.5, *n.Amount)
	assert.Nil(t, n.PhoneNumber)
	assert.Empty(t, skipped)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "not json", body: `not json`, wantErr: "invalid callback body"},
		{name: "empty", body: ``, wantErr: "invalid callback body"},
		{name: "no Body", body: `{"foo":"bar"}`, wantErr: "missing Body.stkCallback"},
		{name: "no stkCallback", body: `{"Body":{}}`, wantErr: "missing Body.stkCallback"},
		{name: "null stkCallback", body: `{"Body":{"stkCallback":null}}`, wantErr: "missing Body.stkCallback"},
		{name: "no ResultCode", body: `{"Body":{"stkCallback":{"CheckoutRequestID":"c"}}}`, wantErr: "missing stkCallback.ResultCode"},
		{name: "ResultCode wrong type", body: `{"Body":{"stkCallback":{"ResultCode":"zero"}}}`, wantErr: "invalid callback body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_UnknownItemsWithOddValuesAreIgnored(t *testing.T) {
	body := `{"Body":{"stkCallback":{"ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"Balance","Value":{"odd":true}}]}}}}`

	n, skipped, err := Parse([]byte(body))
	require.NoError(t, err)
	assert.Nil(t, n.Amount)
	assert.Empty(t, skipped)
}

func TestParse_UnusableItemsAreSkipped(t *testing.T) {
	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"c","ResultCode":0,"CallbackMetadata":{"Item":[
		{"Name":"Amount","Value":"ten"},
		{"Name":"PhoneNumber","Value":{"n":1}},
		{"Name":"TransactionDate","Value":true},
		{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"}
	]}}}}`

	n, skipped, err := Parse([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "c", n.CheckoutRequestID)
	assert.Nil(t, n.Amount)
	assert.Nil(t, n.PhoneNumber)
	assert.Nil(t, n.TransactionDate)
	require.NotNil(t, n.MpesaReceiptNumber)
	assert.Equal(t, "NLJ7RT61SV", *n.MpesaReceiptNumber)

	require.Len(t, skipped, 3)
	assert.Contains(t, skipped[0], "Amount is not numeric")
	assert.Contains(t, skipped[1], "metadata item PhoneNumber")
	assert.Contains(t, skipped[2], "metadata item TransactionDate")
}
