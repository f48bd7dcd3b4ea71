package ecalveto

import "fmt"

// Category is the output partition of an event.
type Category int

const (
	Unsorted Category = iota
	EGIn              // electron and photon fiducial
	EIn               // electron fiducial only
	GIn               // photon fiducial only
	None              // neither
)

var categoryNames = [...]string{
	Unsorted: "unsorted",
	EGIn:     "egin",
	EIn:      "ein",
	GIn:      "gin",
	None:     "none",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// FiducialCategories lists the partitions used when events are separated.
var FiducialCategories = []Category{EGIn, EIn, GIn, None}

// Router assigns events to output partitions.
type Router struct {
	Separate bool
	Cells    *CellMap
	Radius   float64
}

func NewRouter(separate bool, cells *CellMap, radius float64) (*Router, error) {
	if separate && (cells == nil || cells.Len() == 0) {
		return nil, fmt.Errorf("fiducial separation needs a cell map")
	}
	return &Router{Separate: separate, Cells: cells, Radius: radius}, nil
}

// Categories returns the partitions Route can return.
func (r *Router) Categories() []Category {
	if !r.Separate {
		return []Category{Unsorted}
	}
	return FiducialCategories
}

// Fiducial reports whether the first layer point of traj is inside a cell.
func (r *Router) Fiducial(traj Trajectory) bool {
	if len(traj) == 0 {
		return false
	}
	return r.Cells.Contains(traj[0], r.Radius)
}

func (r *Router) Route(e, g Trajectory) Category {
	if !r.Separate {
		return Unsorted
	}
	eFid := r.Fiducial(e)
	gFid := r.Fiducial(g)
	switch {
	case eFid && gFid:
		return EGIn
	case eFid:
		return EIn
	case gFid:
		return GIn
	default:
		return None
	}
}
