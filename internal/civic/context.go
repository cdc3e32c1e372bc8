package civic

// #region imports
import (
	"regexp"
	"sort"
	"strings"
)

// #endregion

// #region field-keys

// Canonical jurisdiction field keys. Unknown keys are allowed and
// preserved verbatim.
const (
	FieldJurisdiction     = "jurisdiction"
	FieldPopulation       = "population"
	FieldEconomicContext  = "economic_context"
	FieldExistingPolicies = "existing_policies"
	FieldPolitics         = "political_landscape"
	FieldBudget           = "budget"
	FieldLocalChallenges  = "local_challenges"
	FieldStakeholders     = "stakeholders"
	FieldDemographics     = "demographics"
	FieldPriorAttempts    = "prior_attempts"
	FieldBudgetCycle      = "budget_cycle"
	FieldElectionTimeline = "election_timeline"
	FieldNotes            = "notes"
)

// #endregion

// #region context

// JurisdictionContext maps field keys to user-supplied strings. All
// fields are optional. Input that fails a strict typed field is never
// discarded; it is relocated into the notes field.
type JurisdictionContext map[string]string

// Clone returns an independent copy.
func (jc JurisdictionContext) Clone() JurisdictionContext {
	out := make(JurisdictionContext, len(jc))
	for k, v := range jc {
		out[k] = v
	}
	return out
}

// HasAny reports whether at least one non-empty field is present.
func (jc JurisdictionContext) HasAny() bool {
	for _, v := range jc {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// SortedKeys returns the field keys in stable order.
func (jc JurisdictionContext) SortedKeys() []string {
	keys := make([]string, 0, len(jc))
	for k := range jc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion

// #region strict-fields

var populationRe = regexp.MustCompile(`^[0-9][0-9,\.]*\s*[kKmM]?$`)

// validators holds the strict checks for typed fields. Fields without
// a validator accept any text.
var validators = map[string]func(string) bool{
	FieldPopulation: func(v string) bool {
		return populationRe.MatchString(strings.TrimSpace(v))
	},
	FieldPriorAttempts: yesNo,
	FieldStakeholders:  nil, // free text
}

func yesNo(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "no", "y", "n", "true", "false", "":
		return true
	}
	return false
}

// SetField stores value under key. When the key has a strict validator
// and the value fails it, the value is relocated to notes and
// relocated is true; the field itself is left unset. Context must
// never be discarded.
func SetField(jc JurisdictionContext, key, value string) (relocated bool) {
	if strings.TrimSpace(value) == "" {
		jc[key] = value
		return false
	}
	check, strict := validators[key]
	if strict && check != nil && !check(value) {
		AppendNote(jc, key+": "+value)
		return true
	}
	jc[key] = value
	return false
}

// SetYesNoField applies the yes/no check to an arbitrary prompt field,
// relocating non-answers ("maybe", prose) into notes.
func SetYesNoField(jc JurisdictionContext, key, value string) (relocated bool) {
	if strings.TrimSpace(value) == "" {
		jc[key] = value
		return false
	}
	if !yesNo(value) {
		AppendNote(jc, key+": "+value)
		return true
	}
	jc[key] = value
	return false
}

// AppendNote adds text to the free-text notes field.
func AppendNote(jc JurisdictionContext, text string) {
	if existing := jc[FieldNotes]; existing != "" {
		jc[FieldNotes] = existing + "\n" + text
		return
	}
	jc[FieldNotes] = text
}

// #endregion

// #region prompt

// FormatForPrompt renders the context as the bulleted block prompts
// embed. Known fields come first in a fixed order, then unknown keys
// sorted, then notes last.
func (jc JurisdictionContext) FormatForPrompt() string {
	known := []string{
		FieldJurisdiction, FieldPopulation, FieldEconomicContext,
		FieldExistingPolicies, FieldPolitics, FieldBudget,
		FieldLocalChallenges, FieldStakeholders, FieldDemographics,
		FieldPriorAttempts, FieldBudgetCycle, FieldElectionTimeline,
	}
	seen := make(map[string]bool, len(known)+1)
	var b strings.Builder
	for _, k := range known {
		seen[k] = true
		if v := jc[k]; v != "" {
			writeField(&b, k, v)
		}
	}
	seen[FieldNotes] = true
	for _, k := range jc.SortedKeys() {
		if !seen[k] && jc[k] != "" {
			writeField(&b, k, jc[k])
		}
	}
	if v := jc[FieldNotes]; v != "" {
		writeField(&b, FieldNotes, v)
	}
	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString("- ")
	b.WriteString(titleCase(strings.ReplaceAll(key, "_", " ")))
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// #endregion
