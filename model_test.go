package metatree_test

import (
	"reflect"
	"testing"

	metatree "github.com/orbiton/metatree"
)

func TestModelLazyDefaults(t *testing.T) {
	m := obsModel(t)

	if got := m.GetString("meta.origin"); got != "GROUND" {
		t.Fatalf("origin default = %q", got)
	}
	if got := m.GetInt("meta.exposure.nints"); got != 1 {
		t.Fatalf("nints default = %d", got)
	}
	if got := m.GetString("meta.coordinates.reference_frame"); got != "ICRS" {
		t.Fatalf("reference_frame default = %q", got)
	}
	if got := m.GetNumber("meta.target.ra"); got != 0 {
		t.Fatalf("ra zero value = %v", got)
	}
	// Reads never allocate storage.
	for _, p := range []string{"meta", "meta.exposure", "meta.target.ra"} {
		if m.Materialized(p) {
			t.Fatalf("read materialized %q", p)
		}
	}
}

func TestModelSetGet(t *testing.T) {
	m := obsModel(t)
	if err := m.Set("meta.target.ra", 42.5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := m.GetNumber("meta.target.ra"); got != 42.5 {
		t.Fatalf("ra = %v", got)
	}
	if !m.Materialized("meta.target") || !m.Materialized("meta") {
		t.Fatalf("intermediate nodes should be materialized by the write")
	}
	// Siblings stay lazy.
	if m.Materialized("meta.target.dec") {
		t.Fatalf("dec should still be lazy")
	}
}

func TestModelCoercionSameFamilyOnly(t *testing.T) {
	m := obsModel(t)

	// Numeric text narrows into the declared numeric kind.
	if err := m.Set("meta.target.ra", "17.25"); err != nil {
		t.Fatalf("set numeric string: %v", err)
	}
	if got := m.GetNumber("meta.target.ra"); got != 17.25 {
		t.Fatalf("ra = %v", got)
	}
	if err := m.Set("meta.exposure.nints", "5"); err != nil {
		t.Fatalf("set integer string: %v", err)
	}
	if got := m.GetInt("meta.exposure.nints"); got != 5 {
		t.Fatalf("nints = %d", got)
	}
	// An integral float is an integer; a fractional one is not.
	if err := m.Set("meta.exposure.nints", 2.0); err != nil {
		t.Fatalf("set integral float: %v", err)
	}
	err := m.Set("meta.exposure.nints", 2.5)
	hasCode(t, err, metatree.CodeCoercionFailed)

	// No cross-family coercion: a number is not a string and nothing is a bool.
	err = m.Set("meta.date", 42)
	hasCode(t, err, metatree.CodeTypeMismatch)

	flags := metatree.NewModel(mustLoad(t, "type: object\nproperties:\n  active:\n    type: boolean\n"))
	err = flags.Set("active", 1)
	hasCode(t, err, metatree.CodeTypeMismatch)
	if err := flags.Set("active", true); err != nil {
		t.Fatalf("set bool: %v", err)
	}
}

func TestModelRejectedWriteLeavesValue(t *testing.T) {
	m := obsModel(t)
	if err := m.Set("meta.target.ra", 1.5); err != nil {
		t.Fatalf("set: %v", err)
	}
	err := m.Set("meta.target.ra", "not a number")
	hasCode(t, err, metatree.CodeTypeMismatch)
	if got := m.GetNumber("meta.target.ra"); got != 1.5 {
		t.Fatalf("rejected write changed the value: %v", got)
	}
}

func TestModelEnumAndBounds(t *testing.T) {
	m := obsModel(t)
	err := m.Set("meta.exposure.readpatt", "SLOW")
	hasCode(t, err, metatree.CodeEnumViolation)
	if err := m.Set("meta.exposure.readpatt", "RAPID"); err != nil {
		t.Fatalf("set: %v", err)
	}
	err = m.Set("meta.exposure.nints", 0)
	hasCode(t, err, metatree.CodeOutOfBounds)
}

func TestModelNoPartialWrites(t *testing.T) {
	m := obsModel(t)
	err := m.Set("meta.target", map[string]any{"ra": 10.0, "dec": "nope"})
	hasCode(t, err, metatree.CodeTypeMismatch)
	// The whole subtree write failed, so nothing was materialized.
	if m.Materialized("meta") {
		t.Fatalf("failed write materialized intermediates")
	}

	// Writing through a not-yet-existing array index fails without leaving
	// an empty array behind.
	err = m.Set("cal_steps.0.name", "dark")
	hasCode(t, err, metatree.CodePathNotFound)
	if m.Materialized("cal_steps") {
		t.Fatalf("failed indexed write materialized cal_steps: %v", m.Tree())
	}
	if !m.Equal(obsModel(t)) {
		t.Fatalf("failed writes changed the tree: %v", m.Tree())
	}
}

func TestModelSubtreeSet(t *testing.T) {
	m := obsModel(t)
	if err := m.Set("meta.target", map[string]any{"ra": 10.0, "dec": -20.0}); err != nil {
		t.Fatalf("set subtree: %v", err)
	}
	if m.GetNumber("meta.target.ra") != 10.0 || m.GetNumber("meta.target.dec") != -20.0 {
		t.Fatalf("subtree values = %v", m.Tree())
	}
}

func TestModelUnknownKeys(t *testing.T) {
	m := obsModel(t)
	// target is closed.
	err := m.Set("meta.target.parallax", 0.1)
	hasCode(t, err, metatree.CodePathNotFound)
	// meta is open, so ad-hoc attributes are allowed and kept.
	if err := m.Set("meta.custom.note", "reprocessed"); err != nil {
		t.Fatalf("set ad-hoc: %v", err)
	}
	if got := m.GetString("meta.custom.note"); got != "reprocessed" {
		t.Fatalf("ad-hoc value = %q", got)
	}
}

func TestModelReadonly(t *testing.T) {
	m := obsModel(t)
	err := m.Set("meta.telescope", "OTHER")
	hasCode(t, err, metatree.CodeReadonly)
	if got := m.GetString("meta.telescope"); got != "ORBVIEW" {
		t.Fatalf("telescope = %q", got)
	}
}

func TestModelDelete(t *testing.T) {
	m := obsModel(t)
	if err := m.Set("meta.target.ra", 1.0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Delete("meta.target.ra"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if m.Materialized("meta.target.ra") {
		t.Fatalf("delete left the node materialized")
	}
	// Deleting a never-written known path is a no-op.
	if err := m.Delete("meta.date"); err != nil {
		t.Fatalf("delete lazy path: %v", err)
	}
	// Unknown paths still fail.
	err := m.Delete("meta.target.parallax")
	hasCode(t, err, metatree.CodePathNotFound)
}

func TestModelAppendItem(t *testing.T) {
	m := obsModel(t)
	idx, err := m.AppendItem("cal_steps", map[string]any{"name": "dark", "status": "COMPLETE"})
	if err != nil || idx != 0 {
		t.Fatalf("append: idx=%d err=%v", idx, err)
	}
	idx, err = m.AppendItem("cal_steps", map[string]any{"name": "flat", "status": "SKIPPED"})
	if err != nil || idx != 1 {
		t.Fatalf("append: idx=%d err=%v", idx, err)
	}
	if got := m.GetString("cal_steps.1.name"); got != "flat" {
		t.Fatalf("element value = %q", got)
	}

	_, err = m.AppendItem("cal_steps", map[string]any{"name": "bad", "status": "RUNNING"})
	hasCode(t, err, metatree.CodeEnumViolation)

	_, err = m.AppendItem("meta", map[string]any{})
	hasCode(t, err, metatree.CodeTypeMismatch)
}

func TestModelCopyIndependence(t *testing.T) {
	m := obsModel(t)
	if err := m.Set("meta.target.ra", 1.0); err != nil {
		t.Fatalf("set: %v", err)
	}
	m.AddHistory("initial processing")
	m.Extra().Put("PRIMARY", "OBSLABEL", "A1", "")

	c := m.Copy()
	if !m.Equal(c) {
		t.Fatalf("copy should start equal")
	}
	if err := c.Set("meta.target.ra", 2.0); err != nil {
		t.Fatalf("set copy: %v", err)
	}
	c.AddHistory("recalibrated")
	c.Extra().Put("PRIMARY", "OBSLABEL", "A2", "")

	if m.GetNumber("meta.target.ra") != 1.0 {
		t.Fatalf("mutating the copy changed the original")
	}
	if len(m.History()) != 1 {
		t.Fatalf("history leaked across the copy: %v", m.History())
	}
	if card, _ := m.Extra().Get("PRIMARY", "OBSLABEL"); card.Value != "A1" {
		t.Fatalf("extra namespace leaked across the copy: %+v", card)
	}
}

func TestModelRangeOrder(t *testing.T) {
	m := obsModel(t)
	// Written out of declaration order on purpose.
	if err := m.Set("meta.exposure.nints", 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set("meta.date", "2026-08-29"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set("meta.target.ra", 5.0); err != nil {
		t.Fatalf("set: %v", err)
	}

	got := m.Keys()
	want := []string{"meta.date", "meta.target.ra", "meta.exposure.nints"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("iteration order = %v, want %v", got, want)
	}
}

func TestModelRangeFilters(t *testing.T) {
	m := obsModel(t)
	if err := m.Set("meta.coordinates.reference_frame", "FK5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set("meta.date", "2026-08-29"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set("data", "ref:block-0"); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Bulk-array leaves are skipped unless asked for.
	keys := m.Keys()
	for _, k := range keys {
		if k == "data" {
			t.Fatalf("data leaf iterated by default: %v", keys)
		}
	}
	keys = m.Keys(metatree.IterOpt{IncludeData: true})
	found := false
	for _, k := range keys {
		if k == "data" {
			found = true
		}
	}
	if !found {
		t.Fatalf("IncludeData did not surface the data leaf: %v", keys)
	}

	// PrimaryOnly hides leaves bound to other sections.
	flat := m.ToFlatDict(metatree.IterOpt{PrimaryOnly: true})
	if _, ok := flat["meta.coordinates.reference_frame"]; ok {
		t.Fatalf("PrimaryOnly leaked a SCI-bound leaf: %v", flat)
	}
	if _, ok := flat["meta.date"]; !ok {
		t.Fatalf("PrimaryOnly dropped a primary leaf: %v", flat)
	}
}

func TestModelUpdateCollectsOutcomes(t *testing.T) {
	// The source model uses a looser schema, so some of its values do not
	// fit the receiver.
	loose := metatree.NewModel(mustLoad(t, `
type: object
properties:
  meta:
    type: object
    properties:
      target:
        type: object
        properties:
          ra:
            type: number
      exposure:
        type: object
        properties:
          readpatt:
            type: string
`))
	if err := loose.Set("meta.target.ra", 9.75); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := loose.Set("meta.exposure.readpatt", "SLOW"); err != nil {
		t.Fatalf("set: %v", err)
	}
	loose.AddHistory("imported")
	loose.Extra().Put("PRIMARY", "SRCFILE", "raw-0001", "")

	m := obsModel(t)
	outcomes := m.Update(loose)
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	byPath := map[string]error{}
	for _, o := range outcomes {
		byPath[o.Path] = o.Err
	}
	if byPath["meta.target.ra"] != nil {
		t.Fatalf("ra transfer failed: %v", byPath["meta.target.ra"])
	}
	hasCode(t, byPath["meta.exposure.readpatt"], metatree.CodeEnumViolation)

	if m.GetNumber("meta.target.ra") != 9.75 {
		t.Fatalf("ra not transferred")
	}
	if len(m.History()) != 1 || m.History()[0] != "imported" {
		t.Fatalf("history not carried: %v", m.History())
	}
	if _, ok := m.Extra().Get("PRIMARY", "SRCFILE"); !ok {
		t.Fatalf("extra entries not carried")
	}
}

func TestModelUpdateFlat(t *testing.T) {
	m := obsModel(t)
	outcomes := m.UpdateFlat(map[string]any{
		"meta.date":      "2026-08-29",
		"meta.target.ra": "bad",
	})
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	// Sorted application order.
	if outcomes[0].Path != "meta.date" || outcomes[1].Path != "meta.target.ra" {
		t.Fatalf("order = %+v", outcomes)
	}
	if outcomes[0].Err != nil {
		t.Fatalf("date failed: %v", outcomes[0].Err)
	}
	hasCode(t, outcomes[1].Err, metatree.CodeTypeMismatch)
}

func TestModelValidateRequired(t *testing.T) {
	m := obsModel(t)
	err := m.Validate()
	if err == nil {
		t.Fatalf("expected missing required property")
	}
	iss, _ := metatree.AsIssues(err)
	if !iss.HasCode(metatree.CodeRequired) {
		t.Fatalf("issues = %v", iss)
	}
	if iss[0].Path != "meta.date" {
		t.Fatalf("required path = %q", iss[0].Path)
	}

	if err := m.Set("meta.date", "2026-08-29"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("validate after set: %v", err)
	}
}

func TestModelJSONRoundTrip(t *testing.T) {
	m := obsModel(t)
	if err := m.Set("meta.date", "2026-08-29"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set("meta.target.ra", 42.5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set("meta.exposure.nints", 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	m.AddHistory("initial processing")
	m.Extra().Put("SCI", "GAINFILE", "gain-0042", "reference file")

	data, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := metatree.FromJSON(data, m.Schema())
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if !m.Equal(back) {
		t.Fatalf("round trip changed the tree:\n%v\n%v", m.Tree(), back.Tree())
	}
	if len(back.History()) != 1 || back.History()[0] != "initial processing" {
		t.Fatalf("history = %v", back.History())
	}
	card, ok := back.Extra().Get("SCI", "GAINFILE")
	if !ok || card.Value != "gain-0042" {
		t.Fatalf("extra card = %+v ok=%v", card, ok)
	}
}
