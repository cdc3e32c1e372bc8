package civic

// #region imports
import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// #endregion

// #region research

// ResearchItem is one retrieved piece of evidence.
type ResearchItem struct {
	Query   string `json:"query"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// ResearchBundle is the ordered research evidence plus its synthesis.
type ResearchBundle struct {
	Items    []ResearchItem `json:"items"`
	Summary  string         `json:"summary"`
	Degraded bool           `json:"degraded"`
}

// #endregion

// #region bundle

// Bundle is the immutable per-request context: the query, the
// jurisdiction profile, and the research synthesis. Bundles are passed
// by ID across components; prompt construction happens at the
// consumer.
type Bundle struct {
	ID           string              `json:"id"`
	Query        string              `json:"query"`
	Jurisdiction JurisdictionContext `json:"jurisdiction"`
	Research     ResearchBundle      `json:"research"`
	Fingerprint  string              `json:"fingerprint"`
	CreatedAt    time.Time           `json:"created_at"`
}

// #endregion

// #region fingerprint

// Fingerprint returns the stable query fingerprint: a SHA-256 over the
// normalized query, the sorted jurisdiction fields, and the research
// summary.
func Fingerprint(query string, jc JurisdictionContext, research ResearchBundle) string {
	h := sha256.New()
	h.Write([]byte(normalize(query)))
	for _, k := range jc.SortedKeys() {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(jc[k]))
		h.Write([]byte{0})
	}
	h.Write([]byte(research.Summary))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// #endregion
