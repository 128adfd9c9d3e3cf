package cube

import (
	"math"
	"slices"
	"sort"
	"strings"
)

func isLat(name string) bool {
	n := strings.ToLower(name)
	return n == "lat" || n == "latitude"
}

func isLon(name string) bool {
	n := strings.ToLower(name)
	return n == "lon" || n == "longitude"
}

// Normalize brings a dataset into a common layout: latitude and longitude
// coordinates are named lat and lon, longitudes lie in [-180, 180) in
// ascending order and the y axis ascends.
func Normalize(d *Dataset) {
	if isLat(d.Y.Name) {
		d.Y.Name = "lat"
	}
	if isLon(d.X.Name) {
		d.X.Name = "lon"
		wrapLongitudes(d)
	}
	if n := d.Y.Len(); n > 1 && d.Y.Values[0] > d.Y.Values[n-1] {
		perm := make([]int, n)
		for i := range perm {
			perm[i] = n - 1 - i
		}
		permuteY(d, perm)
	}
}

func wrapLongitudes(d *Dataset) {
	changed := false
	for i, x := range d.X.Values {
		w := math.Mod(x+180, 360)
		if w < 0 {
			w += 360
		}
		w -= 180
		if w != x {
			d.X.Values[i] = w
			changed = true
		}
	}
	if !changed && sort.Float64sAreSorted(d.X.Values) {
		return
	}
	perm := make([]int, d.X.Len())
	for i := range perm {
		perm[i] = i
	}
	vals := d.X.Values
	sort.SliceStable(perm, func(a, b int) bool { return vals[perm[a]] < vals[perm[b]] })
	permuteX(d, perm)
}

func permuteX(d *Dataset, perm []int) {
	old := slices.Clone(d.X.Values)
	for i, p := range perm {
		d.X.Values[i] = old[p]
	}
	nx := d.X.Len()
	row := make([]float64, nx)
	for _, v := range d.vars {
		for off := 0; off < len(v.Data); off += nx {
			copy(row, v.Data[off:off+nx])
			for i, p := range perm {
				v.Data[off+i] = row[p]
			}
		}
	}
}

func permuteY(d *Dataset, perm []int) {
	old := slices.Clone(d.Y.Values)
	for i, p := range perm {
		d.Y.Values[i] = old[p]
	}
	ny, nx := d.Y.Len(), d.X.Len()
	plane := make([]float64, ny*nx)
	for _, v := range d.vars {
		for off := 0; off < len(v.Data); off += ny * nx {
			copy(plane, v.Data[off:off+ny*nx])
			for i, p := range perm {
				copy(v.Data[off+i*nx:off+(i+1)*nx], plane[p*nx:(p+1)*nx])
			}
		}
	}
}
