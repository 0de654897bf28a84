package binding

import (
	"context"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/errors"
)

// IParam names an integer engine parameter. The set is closed; each kind
// maps the symbolic name to the numeric key its entry points expect.
type IParam string

const (
	IPVerbose   IParam = "verbose"   // output chatter level
	IPMem       IParam = "mem"       // memory budget in MB
	IPDebug     IParam = "debug"     // debug mode
	IPAngle     IParam = "angle"     // sharp angle detection on/off
	IPIso       IParam = "iso"       // level-set (isovalue) mode
	IPOptim     IParam = "optim"     // optimize without size change
	IPNoInsert  IParam = "noinsert"  // suppress point insertion/deletion
	IPNoSwap    IParam = "noswap"    // suppress edge/face swapping
	IPNoMove    IParam = "nomove"    // suppress point relocation
	IPNoSurf    IParam = "nosurf"    // freeze the boundary surface
	IPAnisoSize IParam = "anisosize" // anisotropic size map
)

// DParam names a real-valued engine parameter.
type DParam string

const (
	DPAngleDetection DParam = "angleDetection" // ridge angle threshold (deg)
	DPHMin           DParam = "hmin"           // minimal edge length
	DPHMax           DParam = "hmax"           // maximal edge length
	DPHSiz           DParam = "hsiz"           // constant target size
	DPHausd          DParam = "hausd"          // Hausdorff distance
	DPHGrad          DParam = "hgrad"          // size gradation
	DPLs             DParam = "ls"             // isovalue for level-set mode
)

// Numeric parameter keys differ between kinds because each engine family
// declares its own enum; the symbolic names above are the stable surface.
var iparamTables = map[mmgwasm.Kind]map[IParam]int32{
	mmgwasm.Kind2D: {
		IPVerbose: 0, IPMem: 1, IPDebug: 2, IPAngle: 3, IPIso: 4,
		IPOptim: 9, IPNoInsert: 10, IPNoSwap: 11, IPNoMove: 12,
		IPNoSurf: 13, IPAnisoSize: 20,
	},
	mmgwasm.Kind3D: {
		IPVerbose: 0, IPMem: 1, IPDebug: 2, IPAngle: 3, IPIso: 4,
		IPOptim: 8, IPNoInsert: 10, IPNoSwap: 11, IPNoMove: 12,
		IPNoSurf: 13, IPAnisoSize: 21,
	},
	// The surface family has no nosurf switch: the whole mesh is surface.
	mmgwasm.KindSurface: {
		IPVerbose: 0, IPMem: 1, IPDebug: 2, IPAngle: 3, IPIso: 4,
		IPOptim: 8, IPNoInsert: 9, IPNoSwap: 10, IPNoMove: 11,
		IPAnisoSize: 16,
	},
}

var dparamTables = map[mmgwasm.Kind]map[DParam]int32{
	mmgwasm.Kind2D: {
		DPAngleDetection: 22, DPHMin: 23, DPHMax: 24, DPHSiz: 25,
		DPHausd: 26, DPHGrad: 27, DPLs: 29,
	},
	mmgwasm.Kind3D: {
		DPAngleDetection: 24, DPHMin: 25, DPHMax: 26, DPHSiz: 27,
		DPHausd: 28, DPHGrad: 29, DPLs: 31,
	},
	mmgwasm.KindSurface: {
		DPAngleDetection: 17, DPHMin: 18, DPHMax: 19, DPHSiz: 20,
		DPHausd: 21, DPHGrad: 22, DPLs: 24,
	},
}

// SetIntParam sets an integer parameter on a handle. Unknown keys for the
// kind fail validation before any foreign call.
func (b *Binding) SetIntParam(ctx context.Context, h int32, p IParam, value int) error {
	key, ok := iparamTables[b.kind][p]
	if !ok {
		return errors.Validation(errors.PhaseBinding, string(p),
			"integer parameter not supported for %s meshes", b.kind)
	}
	return b.callChecked(ctx, "set_iparameter", u(h), u(key), ui(value))
}

// SetRealParam sets a real-valued parameter on a handle.
func (b *Binding) SetRealParam(ctx context.Context, h int32, p DParam, value float64) error {
	key, ok := dparamTables[b.kind][p]
	if !ok {
		return errors.Validation(errors.PhaseBinding, string(p),
			"real parameter not supported for %s meshes", b.kind)
	}
	return b.callChecked(ctx, "set_dparameter", u(h), u(key), f(value))
}

// IntParams lists the integer parameter names this kind accepts.
func (b *Binding) IntParams() []IParam {
	table := iparamTables[b.kind]
	out := make([]IParam, 0, len(table))
	for p := range table {
		out = append(out, p)
	}
	return out
}

// RealParams lists the real parameter names this kind accepts.
func (b *Binding) RealParams() []DParam {
	table := dparamTables[b.kind]
	out := make([]DParam, 0, len(table))
	for p := range table {
		out = append(out, p)
	}
	return out
}
