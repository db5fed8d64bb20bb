package seasonal

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"FinCast/internal/domain/models"
)

// Fingerprint derives a cache key from the full content of a series plus
// its tenant/client scope. Two series hash equal only when every date and
// value matches and the scope is identical, so a cache hit can never
// cross tenants or survive a change to the underlying data.
func Fingerprint(tenantID, clientID string, freq models.Frequency, series []models.SeriesPoint) string {
	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(clientID))
	h.Write([]byte{0})
	h.Write([]byte(freq))

	var buf [16]byte
	for _, p := range series {
		binary.BigEndian.PutUint64(buf[:8], uint64(p.Date.Unix()))
		binary.BigEndian.PutUint64(buf[8:], math.Float64bits(p.Value))
		h.Write(buf[:])
	}
	return "seasonal:" + hex.EncodeToString(h.Sum(nil))
}
