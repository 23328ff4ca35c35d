package report

import (
	"strings"

	"report-intake-service/models"

	"github.com/golang/geo/s2"
	"github.com/shopspring/decimal"
)

// cellLevel is roughly 30-40m across; fine enough to group reports of the same spot.
const cellLevel = 18

var (
	maxLat = decimal.NewFromInt(90)
	maxLng = decimal.NewFromInt(180)
)

// Assemble builds the structured report. It does no I/O and never fails:
// an unparseable location is passed through verbatim without coordinates.
func Assemble(sub *models.Submission, source, summary string) models.StructuredReport {
	location := sub.Get(models.FieldLocation)
	return models.StructuredReport{
		CitizenID:    sub.Get(models.FieldCitizenID),
		OriginalText: source,
		Summary:      summary,
		Location:     location,
		Coordinates:  ParseLocation(location),
		PhotoURLs:    SplitPhotoURLs(sub.Get(models.FieldPhotoURLs)),
	}
}

// SplitPhotoURLs splits a comma-delimited list, keeping order and dropping
// blank entries. The result is never nil.
func SplitPhotoURLs(raw string) []string {
	urls := []string{}
	if strings.TrimSpace(raw) == "" {
		return urls
	}
	for _, u := range strings.Split(raw, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// ParseLocation reads "lat,lng" in decimal degrees. It returns nil when the
// value is not a valid coordinate pair.
func ParseLocation(raw string) *models.Coordinates {
	latStr, lngStr, ok := strings.Cut(raw, ",")
	if !ok {
		return nil
	}
	lat, err := decimal.NewFromString(strings.TrimSpace(latStr))
	if err != nil {
		return nil
	}
	lng, err := decimal.NewFromString(strings.TrimSpace(lngStr))
	if err != nil {
		return nil
	}
	if lat.Abs().GreaterThan(maxLat) || lng.Abs().GreaterThan(maxLng) {
		return nil
	}

	ll := s2.LatLngFromDegrees(lat.InexactFloat64(), lng.InexactFloat64())
	if !ll.IsValid() {
		return nil
	}
	return &models.Coordinates{
		Latitude:  lat,
		Longitude: lng,
		S2Cell:    s2.CellIDFromLatLng(ll).Parent(cellLevel).ToToken(),
	}
}
