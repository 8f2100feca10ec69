package scoring

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResume = "John Smith john@example.com +1 555 123 4567 Bachelor of Science in Computer Science. " +
	"Skilled in Python, React, and AWS. Python Python Python."

func TestExtractEntitiesSample(t *testing.T) {
	set := ExtractEntities(Normalize(sampleResume))

	assert.Equal(t, []string{"john@example.com"}, set.Emails)
	assert.Contains(t, set.Phones, "+1 555 123 4567")
	assert.Contains(t, set.Persons, "John Smith")
	assert.Equal(t, []string{"AWS"}, set.Organizations)
}

func TestExtractEntitiesDedupeKeepsFirstSeenOrder(t *testing.T) {
	text := "b@x.io a@x.io b@x.io NASA IBM NASA"
	set := ExtractEntities(text)

	assert.Equal(t, []string{"b@x.io", "a@x.io"}, set.Emails)
	assert.Equal(t, []string{"NASA", "IBM"}, set.Organizations)
}

func TestExtractEntitiesOrganizationLength(t *testing.T) {
	set := ExtractEntities("AI ML SQL GCP")
	assert.Equal(t, []string{"SQL", "GCP"}, set.Organizations, "两个字母的缩写不算机构")
}

func TestExtractEntitiesPhoneNeedsNineDigits(t *testing.T) {
	assert.Empty(t, ExtractEntities("call 555-1234").Phones)
	assert.Equal(t, []string{"555-123-4567"}, ExtractEntities("call 555-123-4567 now").Phones)
}

func TestExtractEntitiesEmptySerializesAsArrays(t *testing.T) {
	set := ExtractEntities("")

	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `{"persons":[],"organizations":[],"emails":[],"phones":[]}`, string(data))

	set = ExtractEntities("nothing to see here")
	assert.NotNil(t, set.Emails)
	assert.NotNil(t, set.Phones)
	assert.Empty(t, set.Emails)
}

func TestExtractEntitiesUnicodeWordBoundaries(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		persons []string
		orgs    []string
	}{
		{"accented surname", "Maria Muñoz worked here", []string{}, []string{}},
		{"accented caps", "studied at ÉCOLE POLYTECHNIQUE", []string{}, []string{"POLYTECHNIQUE"}},
		{"caps glued to letters", "naïveSQL and SQLé", []string{}, []string{}},
		{"mixed sentence", "Maria Muñoz worked at ÉCOLE and at naïveSQL", []string{}, []string{}},
		{"adjacent names", "John Smith Jane Doe", []string{"John Smith", "Jane Doe"}, []string{}},
		{"prefix letter", "aJohn Smith Jane", []string{"Smith Jane"}, []string{}},
		{"punctuation bounds", "(Alex Kim), AWS.", []string{"Alex Kim"}, []string{"AWS"}},
		{"digit glued", "2IBM IBM2 IBM", []string{}, []string{"IBM"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := ExtractEntities(tc.text)
			assert.Equal(t, tc.persons, set.Persons)
			assert.Equal(t, tc.orgs, set.Organizations)
		})
	}
}
