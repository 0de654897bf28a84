package worker

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/mesh"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MeshPayload is one mesh flattened for transport. Connectivity stays
// 1-indexed; the kind travels as its string name.
type MeshPayload struct {
	Kind         string    `json:"kind"`
	Vertices     []float64 `json:"vertices"`
	VertexRefs   []int32   `json:"vertexRefs,omitempty"`
	Cells        []int32   `json:"cells,omitempty"`
	CellRefs     []int32   `json:"cellRefs,omitempty"`
	Boundary     []int32   `json:"boundary,omitempty"`
	BoundaryRefs []int32   `json:"boundaryRefs,omitempty"`
}

// Request is one remesh job.
type Request struct {
	Mesh    MeshPayload   `json:"mesh"`
	Options *mesh.Options `json:"options,omitempty"`
}

// Stats summarizes a completed job.
type Stats struct {
	Vertices      int     `json:"vertices"`
	Cells         int     `json:"cells"`
	Boundary      int     `json:"boundary"`
	QualityBefore float64 `json:"qualityBefore"`
	QualityAfter  float64 `json:"qualityAfter"`
	Inserted      int     `json:"inserted"`
	Removed       int     `json:"removed"`
	ElapsedMS     int64   `json:"elapsedMs"`
}

// Response is the job outcome. Mesh is nil when the engine failed hard;
// Err carries transport-independent error text.
type Response struct {
	Mesh     *MeshPayload `json:"mesh,omitempty"`
	Stats    Stats        `json:"stats"`
	Warnings []string     `json:"warnings,omitempty"`
	Success  bool         `json:"success"`
	Err      string       `json:"err,omitempty"`
}

// Snapshot reads a live mesh into a transportable payload.
func Snapshot(ctx context.Context, m *mesh.Mesh) (*MeshPayload, error) {
	d, err := m.Data(ctx)
	if err != nil {
		return nil, err
	}
	return &MeshPayload{
		Kind:         d.Kind.String(),
		Vertices:     d.Vertices,
		VertexRefs:   d.VertexRefs,
		Cells:        d.Cells,
		CellRefs:     d.CellRefs,
		Boundary:     d.Boundary,
		BoundaryRefs: d.BoundaryRefs,
	}, nil
}

// Restore uploads the payload into a fresh handle in the given session.
func (p *MeshPayload) Restore(ctx context.Context, ses *mesh.Session) (*mesh.Mesh, error) {
	kind, err := mmgwasm.ParseKind(p.Kind)
	if err != nil {
		return nil, errors.New(errors.PhaseSerialize, errors.KindInvalidData).
			Cause(err).Detail("payload kind").Build()
	}
	return mesh.NewMesh(ctx, ses, mesh.MeshData{
		Vertices:     p.Vertices,
		VertexRefs:   p.VertexRefs,
		Cells:        p.Cells,
		CellRefs:     p.CellRefs,
		Boundary:     p.Boundary,
		BoundaryRefs: p.BoundaryRefs,
	}, mesh.WithKind(kind))
}

// Marshal serializes the request.
func (r *Request) Marshal() ([]byte, error) { return json.Marshal(r) }

// ParseRequest deserializes a request.
func ParseRequest(buf []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(buf, &r); err != nil {
		return nil, errors.New(errors.PhaseSerialize, errors.KindInvalidData).
			Cause(err).Detail("request body").Build()
	}
	return &r, nil
}

// Marshal serializes the response.
func (r *Response) Marshal() ([]byte, error) { return json.Marshal(r) }

// ParseResponse deserializes a response.
func ParseResponse(buf []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(buf, &r); err != nil {
		return nil, errors.New(errors.PhaseSerialize, errors.KindInvalidData).
			Cause(err).Detail("response body").Build()
	}
	return &r, nil
}

// run executes one job against a session: restore, remesh, snapshot,
// release. Failures come back inside the response, never as a panic.
func run(ctx context.Context, ses *mesh.Session, req *Request) *Response {
	m, err := req.Mesh.Restore(ctx, ses)
	if err != nil {
		return &Response{Err: err.Error()}
	}
	defer m.Dispose(ctx)

	res, err := m.Remesh(ctx, req.Options)
	if err != nil {
		return &Response{Err: err.Error()}
	}

	resp := &Response{
		Success:  res.Success,
		Warnings: res.Warnings,
		Stats: Stats{
			Vertices:      res.Counts.Vertices,
			Cells:         res.Counts.Cells,
			Boundary:      res.Counts.Boundary,
			QualityBefore: res.QualityBefore,
			QualityAfter:  res.QualityAfter,
			Inserted:      res.Inserted,
			Removed:       res.Removed,
			ElapsedMS:     res.Elapsed.Milliseconds(),
		},
	}
	if res.Mesh != nil {
		defer res.Mesh.Dispose(ctx)
		payload, err := Snapshot(ctx, res.Mesh)
		if err != nil {
			return &Response{Err: err.Error()}
		}
		resp.Mesh = payload
	}
	return resp
}
