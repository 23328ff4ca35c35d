package report

import (
	"encoding/json"
	"testing"

	"report-intake-service/models"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPhotoURLs(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want []string
	}{
		{"two urls", "http://a,http://b", []string{"http://a", "http://b"}},
		{"absent", "", []string{}},
		{"whitespace only", "  ", []string{}},
		{"spaces trimmed", " http://a , http://b ", []string{"http://a", "http://b"}},
		{"blank entries dropped", "http://a,,http://b,", []string{"http://a", "http://b"}},
		{"empty middle entry dropped", "a,,b", []string{"a", "b"}},
		{"whitespace entry dropped", "a, ,b", []string{"a", "b"}},
		{"order kept", "http://c,http://a,http://b", []string{"http://c", "http://a", "http://b"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitPhotoURLs(tc.raw)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLocation(t *testing.T) {
	c := ParseLocation("40.7128,-74.0060")
	require.NotNil(t, c)
	assert.Equal(t, "40.7128", c.Latitude.String())
	assert.Equal(t, "-74.006", c.Longitude.String())

	want := s2.CellIDFromLatLng(s2.LatLngFromDegrees(40.7128, -74.0060)).Parent(cellLevel).ToToken()
	assert.Equal(t, want, c.S2Cell)

	for _, bad := range []string{"", "Main Street", "40.7", "91,10", "10,181", "abc,def", "1,2,3"} {
		assert.Nil(t, ParseLocation(bad), bad)
	}
}

func TestAssemble(t *testing.T) {
	sub := &models.Submission{Fields: map[string]string{
		models.FieldCitizenID: "citizen-42",
		models.FieldLocation:  "47.3769, 8.5417",
		models.FieldPhotoURLs: "http://a,http://b",
	}}

	r := Assemble(sub, "the original text", "A summary.")

	assert.Equal(t, "citizen-42", r.CitizenID)
	assert.Equal(t, "the original text", r.OriginalText)
	assert.Equal(t, "A summary.", r.Summary)
	assert.Equal(t, "47.3769, 8.5417", r.Location)
	require.NotNil(t, r.Coordinates)
	assert.Equal(t, []string{"http://a", "http://b"}, r.PhotoURLs)
}

func TestAssembleMinimalJSON(t *testing.T) {
	r := Assemble(&models.Submission{}, "text", "Summary.")

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"citizen_id":"","original_text":"text","summary":"Summary.","location":"","photo_urls":[]}`,
		string(b))
}

func TestAssembleDeterministic(t *testing.T) {
	sub := &models.Submission{Fields: map[string]string{
		models.FieldCitizenID: "c",
		models.FieldLocation:  "1.5,2.5",
		models.FieldPhotoURLs: "http://x",
	}}

	first, err := json.Marshal(Assemble(sub, "t", "s"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(Assemble(sub, "t", "s"))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
