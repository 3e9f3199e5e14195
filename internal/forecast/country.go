package forecast

import (
	"database/sql"

	"github.com/aqib-ilyas/conflictlens/internal/models"
)

// CountryResolver resolves country identity for a record from an ordered
// list of candidate ids. The first valid candidate wins; no candidate at all
// is a valid terminal state, not an error.
type CountryResolver struct {
	names map[int64]string
}

func NewCountryResolver(countries []models.Country) *CountryResolver {
	names := make(map[int64]string, len(countries))
	for _, c := range countries {
		names[c.CountryID] = c.Name
	}
	return &CountryResolver{names: names}
}

// Resolve walks the candidates in priority order and returns the resolved
// country id and display name. The name stays nil when the id is not in the
// directory; names are never fabricated.
func (r *CountryResolver) Resolve(candidates ...sql.NullInt64) (id *int64, name *string) {
	for _, c := range candidates {
		if !c.Valid {
			continue
		}
		v := c.Int64
		id = &v
		if n, ok := r.names[v]; ok {
			name = &n
		}
		return id, name
	}
	return nil, nil
}
