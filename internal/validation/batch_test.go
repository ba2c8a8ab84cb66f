package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/employee-batch-service/internal/apperrors"
	"github.com/cyderes/employee-batch-service/internal/models"
)

func requireKind(t *testing.T, err error, kind apperrors.Kind) *apperrors.Error {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected *apperrors.Error, got %v", err)
	assert.Equal(t, kind, appErr.Kind)
	return appErr
}

func TestParseBatch_Valid(t *testing.T) {
	body := `[
		{"externalId":"E1","firstName":"Ada","lastName":"Lovelace","phoneNumber":"+15551234567"},
		{"externalId":"E2","firstName":"Alan","lastName":"Turing"}
	]`

	records, err := ParseBatch([]byte(body))

	require.NoError(t, err)
	assert.Equal(t, []models.BatchRecord{
		{ExternalID: "E1", FirstName: "Ada", LastName: "Lovelace", PhoneNumber: ptr("+15551234567")},
		{ExternalID: "E2", FirstName: "Alan", LastName: "Turing"},
	}, records)
}

func TestParseBatch_InvalidPhoneIsNotRejected(t *testing.T) {
	body := `[{"externalId":"E1","firstName":"A","lastName":"B","phoneNumber":"not-a-number"}]`

	records, err := ParseBatch([]byte(body))

	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestParseBatch_EmptyBody(t *testing.T) {
	for _, body := range []string{"", "   \n"} {
		_, err := ParseBatch([]byte(body))
		requireKind(t, err, apperrors.KindEmptyBody)
	}
}

func TestParseBatch_EmptyArray(t *testing.T) {
	_, err := ParseBatch([]byte(`[]`))

	appErr := requireKind(t, err, apperrors.KindSchemaViolation)
	assert.Contains(t, appErr.Message, "at least one record")
}

func TestParseBatch_UnknownField(t *testing.T) {
	body := `[{"externalId":"E1","firstName":"A","lastName":"B","salary":100}]`

	_, err := ParseBatch([]byte(body))

	appErr := requireKind(t, err, apperrors.KindSchemaViolation)
	assert.Contains(t, appErr.Message, "salary")
}

func TestParseBatch_KeysMustMatchExactly(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
	}{
		"upper case": {
			body:  `[{"EXTERNALID":"E1","firstName":"A","lastName":"B"}]`,
			field: "EXTERNALID",
		},
		"lower case": {
			body:  `[{"externalId":"E1","firstname":"A","lastName":"B"}]`,
			field: "firstname",
		},
		"shadowing": {
			body:  `[{"externalId":"E1","ExternalId":"E2","firstName":"A","lastName":"B"}]`,
			field: "ExternalId",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBatch([]byte(tc.body))

			appErr := requireKind(t, err, apperrors.KindSchemaViolation)
			assert.Contains(t, appErr.Message, tc.field)
		})
	}
}

func TestParseBatch_PhoneNumberPresence(t *testing.T) {
	body := `[
		{"externalId":"E1","firstName":"A","lastName":"B"},
		{"externalId":"E2","firstName":"A","lastName":"B","phoneNumber":""}
	]`

	records, err := ParseBatch([]byte(body))

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].PhoneNumber)
	require.NotNil(t, records[1].PhoneNumber)
	assert.Equal(t, "", *records[1].PhoneNumber)
	assert.True(t, HasValidPhone(records[0]))
	assert.False(t, HasValidPhone(records[1]))
}

func TestParseBatch_WrongShape(t *testing.T) {
	cases := map[string]string{
		"object":       `{"externalId":"E1","firstName":"A","lastName":"B"}`,
		"null":         `null`,
		"wrong type":   `[{"externalId":1,"firstName":"A","lastName":"B"}]`,
		"trailing":     `[{"externalId":"E1","firstName":"A","lastName":"B"}] []`,
		"missing name": `[{"externalId":"E1","lastName":"B"}]`,
		"null element": `[null]`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBatch([]byte(body))
			requireKind(t, err, apperrors.KindSchemaViolation)
		})
	}
}

func TestParseBatch_MalformedJSON(t *testing.T) {
	_, err := ParseBatch([]byte(`[{"externalId":`))

	requireKind(t, err, apperrors.KindRequest)
}

func TestParseBatch_DuplicateIDsCollected(t *testing.T) {
	body := `[
		{"externalId":"E2","firstName":"A","lastName":"B"},
		{"externalId":"E1","firstName":"A","lastName":"B","phoneNumber":"+15551234567"},
		{"externalId":"E1","firstName":"C","lastName":"D"},
		{"externalId":"E2","firstName":"C","lastName":"D"},
		{"externalId":"E3","firstName":"C","lastName":"D"}
	]`

	_, err := ParseBatch([]byte(body))

	appErr := requireKind(t, err, apperrors.KindDuplicateIDInBatch)
	assert.Equal(t, []string{"E1", "E2"}, appErr.Fields["duplicateIds"])
}

func TestPhoneNumberValid(t *testing.T) {
	assert.True(t, PhoneNumberValid("+15551234567"))
	assert.True(t, PhoneNumberValid("+442071838750"))
	assert.False(t, PhoneNumberValid("not-a-number"))
	assert.False(t, PhoneNumberValid("5551234567"))
	assert.False(t, PhoneNumberValid(""))
}

func TestHasValidPhone(t *testing.T) {
	assert.True(t, HasValidPhone(models.BatchRecord{ExternalID: "E1"}))
	assert.True(t, HasValidPhone(models.BatchRecord{ExternalID: "E1", PhoneNumber: ptr("+15551234567")}))
	assert.False(t, HasValidPhone(models.BatchRecord{ExternalID: "E1", PhoneNumber: ptr("not-a-number")}))
	assert.False(t, HasValidPhone(models.BatchRecord{ExternalID: "E1", PhoneNumber: ptr("")}))
}

func ptr(s string) *string { return &s }
