// Package geo implements the Geo index specialization of spec.md §4.6:
// each record's `{lat, long}` child object is reduced to a 10-character
// geohash key, and `geo:nearby {lat, long, radius_m}` is answered by
// generating a covering set of geohash prefixes and unioning `like
// "prefix*"` tree searches.
//
// No geohash/geospatial library exists anywhere in the example corpus (see
// DESIGN.md), so this is built on the standard, widely published
// bit-interleaving geohash algorithm and a precomputed per-precision cell
// dimension table, both stdlib-only.
package geo

import (
	"math"

	"idxengine/pkg/codec"
	"idxengine/pkg/customerrors"
	"idxengine/pkg/index"
	"idxengine/pkg/tree"
)

const base32Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// Precision is the fixed geohash length every Geo index stores (spec
// §4.6: "entry key = 10-character geohash").
const Precision = 10

// Encode produces the Precision-character geohash for (lat, long).
func Encode(lat, long float64) string {
	return EncodeN(lat, long, Precision)
}

// EncodeN produces an n-character geohash, used both for the stored key
// (n == Precision) and for coarser covering prefixes (n < Precision).
func EncodeN(lat, long float64, n int) string {
	latRange := [2]float64{-90, 90}
	lonRange := [2]float64{-180, 180}

	var out []byte
	bit, ch := 0, 0
	evenBit := true
	for len(out) < n {
		if evenBit {
			mid := (lonRange[0] + lonRange[1]) / 2
			if long >= mid {
				ch |= 1 << (4 - bit)
				lonRange[0] = mid
			} else {
				lonRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}
		evenBit = !evenBit
		if bit < 4 {
			bit++
		} else {
			out = append(out, base32Alphabet[ch])
			bit, ch = 0, 0
		}
	}
	return string(out)
}

// cellMeters is the approximate (latitude, longitude) cell dimension in
// meters at each geohash precision (1-indexed; standard published values),
// the "precomputed table of lat/long cell dimensions per precision" spec
// §4.6 calls for.
var cellMeters = [11]float64{
	0:  0,
	1:  5_009_400,
	2:  1_252_300,
	3:  156_500,
	4:  39_100,
	5:  4_900,
	6:  1_200,
	7:  152.9,
	8:  38.2,
	9:  4.8,
	10: 1.2,
}

// precisionForRadius picks the coarsest precision whose cell still covers
// the search disk's diameter, so the covering set stays small (spec §4.6:
// "computes a coarser precision from the radius").
func precisionForRadius(radiusM float64) int {
	for p := Precision; p >= 1; p-- {
		if cellMeters[p] >= 2*radiusM {
			return p
		}
	}
	return 1
}

const metersPerDegreeLat = 111_320

func metersPerDegreeLon(lat float64) float64 {
	return metersPerDegreeLat * math.Cos(lat*math.Pi/180)
}

// coveringSampleGrid is the resolution sampled across the search disk's
// bounding box to build the set of covering geohash prefixes; fine enough
// that no prefix-sized gap inside the box is skipped for any precision
// precisionForRadius can return.
const coveringSampleGrid = 6

// CoveringPrefixes returns the geohash prefixes (at the precision
// precisionForRadius picks) whose cells intersect the bounding box of the
// (lat, long, radiusM) disk. The result contains false positives near the
// disk boundary; callers are expected to post-filter by true distance
// (spec §4.6).
func CoveringPrefixes(lat, long, radiusM float64) []string {
	precision := precisionForRadius(radiusM)

	degLat := radiusM / metersPerDegreeLat
	degLon := radiusM / metersPerDegreeLat // fallback for the lonDenom==0 pole case
	if lonDenom := metersPerDegreeLon(lat); lonDenom > 0 {
		degLon = radiusM / lonDenom
	}

	seen := map[string]struct{}{}
	var out []string
	for i := 0; i < coveringSampleGrid; i++ {
		for j := 0; j < coveringSampleGrid; j++ {
			fLat := lat - degLat + 2*degLat*float64(i)/float64(coveringSampleGrid-1)
			fLon := long - degLon + 2*degLon*float64(j)/float64(coveringSampleGrid-1)
			prefix := EncodeN(fLat, fLon, precision)
			if _, ok := seen[prefix]; !ok {
				seen[prefix] = struct{}{}
				out = append(out, prefix)
			}
		}
	}
	return out
}

// haversineMeters is the true great-circle distance between two points,
// for callers post-filtering CoveringPrefixes' candidate set (spec §4.6).
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6_371_000.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}

// DistanceMeters exposes the Haversine distance for callers filtering
// Nearby's false positives.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineMeters(lat1, lon1, lat2, lon2)
}

// OpNearby is the operator spec §4.6 names for Geo indexes; it takes three
// numeric operands (lat, long, radius_m), so — like FullText's phrase/OR
// queries — it is answered through Nearby below rather than through a
// single TranslateQuery/Search call.
const OpNearby tree.Operator = "geo:nearby"

// Index is the Geo specialization.
type Index struct {
	*index.Index
	LatField  string
	LongField string
}

func New(t *tree.Tree, path, latField, longField string, includeKeys []string, caseSensitive bool) *Index {
	base := index.New(t, path, latField+","+longField, includeKeys, caseSensitive)
	return &Index{Index: base, LatField: latField, LongField: longField}
}

func (ix *Index) geohash(r index.Record) string {
	lat := r.Fields[ix.LatField].Float
	long := r.Fields[ix.LongField].Float
	return Encode(lat, long)
}

func (ix *Index) ProjectBuild(r index.Record) ([]index.Projection, error) {
	return []index.Projection{{
		Key:      codec.FromString(ix.geohash(r)),
		Pointer:  r.Pointer(),
		Metadata: ix.Metadata(r),
	}}, nil
}

// ProjectUpdate re-derives the geohash for both versions and emits a
// remove+add only if the record moved to a different cell.
func (ix *Index) ProjectUpdate(old, new index.Record) ([]tree.TxOp, error) {
	oldHash, newHash := ix.geohash(old), ix.geohash(new)
	if oldHash == newHash {
		return nil, nil
	}
	return []tree.TxOp{
		{Kind: tree.OpRemove, Key: codec.FromString(oldHash), Pointer: old.Pointer()},
		{Kind: tree.OpAdd, Key: codec.FromString(newHash), Pointer: new.Pointer(), Metadata: ix.Metadata(new)},
	}, nil
}

func (ix *Index) ValidOperators() []tree.Operator {
	return []tree.Operator{OpNearby}
}

// TranslateQuery has no single-SearchOptions shape for geo:nearby;
// pkg/query must call Nearby directly once it recognizes a Geo index, the
// same special-case pattern it needs for FullText's phrase/OR queries.
func (ix *Index) TranslateQuery(op tree.Operator, args ...codec.Key) (tree.SearchOptions, error) {
	return tree.SearchOptions{}, customerrors.ErrInvalidArgument
}

// Nearby answers `geo:nearby {lat, long, radius_m}` (spec §4.6): unions
// `like "prefix*"` searches over the covering prefix set. The result
// includes false positives near the disk boundary; filter with
// DistanceMeters to get the exact disk.
func (ix *Index) Nearby(lat, long, radiusM float64) ([]codec.RecordPointer, error) {
	prefixes := CoveringPrefixes(lat, long, radiusM)

	seen := map[string]codec.RecordPointer{}
	for _, prefix := range prefixes {
		res, err := ix.Tree.Search(tree.OpLike, tree.SearchOptions{Value: codec.FromString(prefix + "*")})
		if err != nil {
			return nil, err
		}
		for _, m := range res.Matches {
			key := pointerKey(m.Value.Pointer)
			seen[key] = m.Value.Pointer
		}
	}

	out := make([]codec.RecordPointer, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out, nil
}

func pointerKey(p codec.RecordPointer) string {
	key := p.Key
	for _, w := range p.Wildcards {
		key = w + "\x00" + key
	}
	return key
}
