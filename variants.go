package ecalveto

import (
	"fmt"
	"sort"
)

// NRegions is the number of containment regions around the projected
// electron and photon trajectories.
const NRegions = 5

// Bookkeeping features written next to the BDT inputs.
const (
	IsAtTSP  = "isAtTSP"
	IsAtESP  = "isAtESP"
	RecoilPT = "recoilPT"
)

// FirstNearPhLayerNotFound is the default of firstNearPhLayer: no layer found.
const FirstNearPhLayerNotFound = 33

// DiscDefault is the default discriminant value.
const DiscDefault = 0.5

// Variant is a named BDT feature set. All schemas of a variant are projected
// from its Inputs so that training and evaluation agree on column order.
type Variant struct {
	Name   string
	Inputs []Feature

	model, tree, eval *Schema
}

func newVariant(name string, inputs []Feature) *Variant {
	v := &Variant{Name: name, Inputs: inputs}
	v.model = mustSchema(inputs...)

	tree := append([]Feature(nil), inputs...)
	tree = append(tree, bookkeeping()...)
	v.tree = mustSchema(tree...)

	eval := append([]Feature(nil), inputs...)
	eval = append(eval, Feature{Name: v.DiscName(), Kind: Float, Default: DiscDefault})
	eval = append(eval, bookkeeping()...)
	v.eval = mustSchema(eval...)
	return v
}

func bookkeeping() []Feature {
	return []Feature{
		{Name: IsAtTSP, Kind: Int},
		{Name: IsAtESP, Kind: Int},
		{Name: RecoilPT, Kind: Float},
	}
}

// DiscName is the name of the discriminant column, e.g. discValue_gabrielle.
func (v *Variant) DiscName() string { return "discValue_" + v.Name }

// ModelSchema holds the BDT inputs in training column order.
func (v *Variant) ModelSchema() *Schema { return v.model }

// TreeSchema is the layout of the flat trees made from raw events.
func (v *Variant) TreeSchema() *Schema { return v.tree }

// EvalSchema is the layout of the evaluated trees.
func (v *Variant) EvalSchema() *Schema { return v.eval }

var baseFeatures = []Feature{
	{Name: "nReadoutHits", Kind: Int, Source: scalar("nReadoutHits")},
	{Name: "summedDet", Kind: Float, Source: scalar("summedDet")},
	{Name: "summedTightIso", Kind: Float, Source: scalar("summedTightIso")},
	{Name: "maxCellDep", Kind: Float, Source: scalar("maxCellDep")},
	{Name: "showerRMS", Kind: Float, Source: scalar("showerRMS")},
	{Name: "xStd", Kind: Float, Source: scalar("xStd")},
	{Name: "yStd", Kind: Float, Source: scalar("yStd")},
	{Name: "avgLayerHit", Kind: Float, Source: scalar("avgLayerHit")},
	{Name: "stdLayerHit", Kind: Float, Source: scalar("stdLayerHit")},
	{Name: "deepestLayerHit", Kind: Int, Source: scalar("deepestLayerHit")},
	{Name: "ecalBackEnergy", Kind: Float, Source: scalar("ecalBackEnergy")},
}

// regionFeatures expands one array field into NRegions features named
// <field>_x1 ... <field>_x<NRegions>.
func regionFeatures(field string, kind Kind) []Feature {
	fs := make([]Feature, NRegions)
	for i := range fs {
		fs[i] = Feature{
			Name:   fmt.Sprintf("%s_x%d", field, i+1),
			Kind:   kind,
			Source: &Source{Field: field, Index: i},
		}
	}
	return fs
}

func scalars(kind Kind, names ...string) []Feature {
	fs := make([]Feature, len(names))
	for i, name := range names {
		fs[i] = Feature{Name: name, Kind: kind, Source: scalar(name)}
	}
	return fs
}

func concat(groups ...[]Feature) []Feature {
	var out []Feature
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var Gabrielle = newVariant("gabrielle", concat(
	baseFeatures,
	// electron RoC
	regionFeatures("electronContainmentEnergy", Float),
	// photon RoC
	regionFeatures("photonContainmentEnergy", Float),
	// outside RoC
	regionFeatures("outsideContainmentEnergy", Float),
	regionFeatures("outsideContainmentNHits", Int),
	regionFeatures("outsideContainmentXStd", Float),
	regionFeatures("outsideContainmentYStd", Float),
))

var Segmipx = newVariant("segmipx", concat(
	baseFeatures,
	// MIP tracking
	scalars(Int, "straight4"),
	[]Feature{{
		Name:    "firstNearPhLayer",
		Kind:    Int,
		Default: FirstNearPhLayerNotFound,
		Source:  scalar("firstNearPhLayer"),
	}},
	scalars(Int, "nNearPhHits", "photonTerritoryHits"),
	scalars(Float, "epSep", "epDot"),
	// longitudinal segments
	scalars(Float, "energy_s1", "xMean_s1", "yMean_s1"),
	scalars(Int, "layerMean_s1"),
	scalars(Float, "energy_s2", "yMean_s3"),
	// electron RoC
	scalars(Float,
		"eContEnergy_x1_s1", "eContEnergy_x2_s1", "eContYMean_x1_s1",
		"eContEnergy_x1_s2", "eContEnergy_x2_s2", "eContYMean_x1_s2",
	),
	// photon RoC
	scalars(Int, "gContNHits_x1_s1"),
	scalars(Float, "gContYMean_x1_s1"),
	scalars(Int, "gContNHits_x1_s2"),
	// outside RoC
	scalars(Float, "oContEnergy_x1_s1", "oContEnergy_x2_s1", "oContEnergy_x3_s1"),
	scalars(Int, "oContNHits_x1_s1"),
	scalars(Float,
		"oContXMean_x1_s1", "oContYMean_x1_s1", "oContYMean_x2_s1", "oContYStd_x1_s1",
		"oContEnergy_x1_s2", "oContEnergy_x2_s2", "oContEnergy_x3_s2",
	),
	scalars(Int, "oContLayerMean_x1_s2"),
	scalars(Float, "oContLayerStd_x1_s2", "oContEnergy_x1_s3"),
	scalars(Int, "oContLayerMean_x1_s3"),
))

var variants = map[string]*Variant{
	Gabrielle.Name: Gabrielle,
	Segmipx.Name:   Segmipx,
}

// Lookup returns the variant registered under name.
func Lookup(name string) (*Variant, error) {
	v, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("unknown variant %q (known: %v)", name, VariantNames())
	}
	return v, nil
}

func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
