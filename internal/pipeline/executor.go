package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
	"github.com/upskiller-xyz/lux-gateway/internal/logging"
	"github.com/upskiller-xyz/lux-gateway/internal/registry"
	"github.com/upskiller-xyz/lux-gateway/internal/serviceclient"
)

// Endpoint is the closed set of public pipeline invocation points (spec §4.3
// Endpoint -> service list table). Aliases (/run, /obstruction_parallel,
// /horizon, /zenith) resolve to the same Endpoint as their canonical path.
type Endpoint string

// The closed set of endpoints.
const (
	EndpointCalculateDirection Endpoint = "calculate-direction"
	EndpointGetReferencePoint  Endpoint = "get-reference-point"
	EndpointObstruction        Endpoint = "obstruction"
	EndpointObstructionAll     Endpoint = "obstruction_all"
	EndpointEncode             Endpoint = "encode"
	EndpointEncodeRaw          Endpoint = "encode_raw"
	EndpointSimulate           Endpoint = "simulate"
	EndpointMerge              Endpoint = "merge"
	EndpointStats              Endpoint = "stats"
)

// endpointServiceLists is the closed per-endpoint ordered service list
// (spec §4.3). BuildRequests for each RequestKind both derives the fan-out
// and, for Obstruction, decides single-vs-derived mode by inspecting the
// accumulator populated so far.
var endpointServiceLists = map[Endpoint][]RequestKind{
	EndpointCalculateDirection: {KindDirectionAngle},
	EndpointGetReferencePoint:  {KindReferencePoint},
	EndpointObstruction:        {KindObstruction},
	EndpointObstructionAll:     {KindReferencePoint, KindDirectionAngle, KindObstruction},
	EndpointEncode:             {KindReferencePoint, KindDirectionAngle, KindObstruction, KindEncode},
	EndpointEncodeRaw:          {KindEncode},
	EndpointSimulate:           {KindReferencePoint, KindDirectionAngle, KindObstruction, KindEncode, KindModel, KindMerge},
	EndpointMerge:              {KindMerge},
	EndpointStats:              {KindStats},
}

// serviceNameForKind maps each stage request kind to the downstream service
// that handles it. DirectionAngle and ReferencePoint route through the
// encoder service.
var serviceNameForKind = map[RequestKind]registry.Name{
	KindDirectionAngle: registry.Encoder,
	KindReferencePoint: registry.Encoder,
	KindObstruction:    registry.Obstruction,
	KindEncode:         registry.Encoder,
	KindModel:          registry.Model,
	KindMerge:          registry.Merger,
	KindStats:          registry.Stats,
}

// downstreamPath is the fixed path appended to a service's base URL.
var downstreamPath = map[RequestKind]string{
	KindDirectionAngle: "/calculate-direction",
	KindReferencePoint: "/get-reference-point",
	KindObstruction:    "/obstruction",
	KindEncode:         "/encode",
	KindModel:          "/predict",
	KindMerge:          "/merge",
	KindStats:          "/stats",
}

// BuildRequests dispatches to the per-kind Parse function (spec §4.2/§4.3).
func BuildRequests(kind RequestKind, acc *Accumulator, pending map[string][]byte) []StageRequest {
	switch kind {
	case KindDirectionAngle:
		return BuildDirectionAngleRequests(acc)
	case KindReferencePoint:
		return BuildReferencePointRequests(acc)
	case KindObstruction:
		if acc.hasRootObstructionCoords() {
			return []StageRequest{acc.rootObstructionRequest()}
		}
		return BuildObstructionRequests(acc)
	case KindEncode:
		return BuildEncodeRequests(acc)
	case KindModel:
		return BuildModelRequests(acc, pending)
	case KindMerge:
		return []StageRequest{BuildMergeRequest(acc)}
	case KindStats:
		return []StageRequest{BuildStatsRequest(acc)}
	default:
		return nil
	}
}

// hasRootObstructionCoords reports whether the accumulator carries a direct
// x/y/z/direction_angle (set by the Request Parser for /obstruction,
// /horizon, /zenith), as opposed to deriving coordinates per window from
// reference_point.
func (a *Accumulator) hasRootObstructionCoords() bool {
	return a.rootX != nil
}

func (a *Accumulator) rootObstructionRequest() StageRequest {
	return StageRequest{
		Kind:           KindObstruction,
		X:              *a.rootX,
		Y:              *a.rootY,
		Z:              *a.rootZ,
		DirectionAngle: *a.rootDirectionAngle,
		Mesh:           a.Mesh,
	}
}

// SetRootObstructionInputs seeds the accumulator with the direct coordinates
// used by the single-call obstruction endpoints (/obstruction, /horizon,
// /zenith), where x/y/z/direction_angle are given directly rather than
// derived from reference-point + direction-angle stages.
func (a *Accumulator) SetRootObstructionInputs(x, y, z, directionAngle float64) {
	a.rootX, a.rootY, a.rootZ, a.rootDirectionAngle = &x, &y, &z, &directionAngle
}

// Executor drives the ordered service list for one endpoint invocation.
type Executor struct {
	Registry *registry.Registry
	Clients  map[registry.Name]*serviceclient.Client
}

// NewExecutor builds an Executor bound to a registry and one Client per
// downstream service.
func NewExecutor(reg *registry.Registry, clients map[registry.Name]*serviceclient.Client) *Executor {
	return &Executor{Registry: reg, Clients: clients}
}

// pendingModelImages carries per-window encoded image bytes produced by the
// Encode stage through to the Model stage's BuildRequests call, since images
// are per-fan-out-iteration outputs rather than accumulator-root state.
type pendingModelImages struct {
	byWindow map[string][]byte
}

// Run executes endpoint's fixed service list against acc, mutating and
// returning it. Stages run strictly in order; within a stage, fan-out tasks
// run concurrently via errgroup and are never canceled mid-flight on a
// sibling's failure — the executor waits for all to finish, then surfaces
// the first failure (spec §5 cancellation policy).
func (e *Executor) Run(ctx context.Context, endpoint Endpoint, acc *Accumulator) (*Accumulator, error) {
	kinds, ok := endpointServiceLists[endpoint]
	if !ok {
		return nil, gwerrors.New(gwerrors.KindInternal, fmt.Sprintf("unknown endpoint %q", endpoint))
	}

	pending := &pendingModelImages{byWindow: map[string][]byte{}}

	for _, kind := range kinds {
		requests := BuildRequests(kind, acc, pending.byWindow)
		if len(requests) == 0 {
			continue
		}

		serviceName := serviceNameForKind[kind]
		client, ok := e.Clients[serviceName]
		if !ok {
			return nil, gwerrors.New(gwerrors.KindInternal, fmt.Sprintf("no client configured for service %q", serviceName))
		}
		baseURL, err := e.Registry.BaseURL(serviceName)
		if err != nil {
			return nil, gwerrors.Wrap(gwerrors.KindInternal, string(serviceName), err)
		}

		if len(requests) == 1 {
			delta, img, err := e.execute(ctx, client, baseURL, kind, requests[0])
			if err != nil {
				return nil, err
			}
			acc.Merge(delta)
			if img != nil && requests[0].WindowName != "" {
				pending.byWindow[requests[0].WindowName] = img
			}
			continue
		}

		logging.FromContext(ctx).Info("fanning out pipeline stage", "kind", kind, "count", len(requests))

		deltas := make([]Delta, len(requests))
		images := make([][]byte, len(requests))
		var g errgroup.Group
		for i, req := range requests {
			i, req := i, req
			g.Go(func() error {
				delta, img, err := e.execute(ctx, client, baseURL, kind, req)
				if err != nil {
					return err
				}
				deltas[i] = delta
				images[i] = img
				return nil
			})
		}
		fanErr := g.Wait()
		// Merge is key-deterministic by window name, so completion order
		// (and the order we range here) does not affect the final state.
		for i, req := range requests {
			if deltas[i].WindowName == "" && req.WindowName != "" {
				continue // this task failed before producing a delta
			}
			acc.Merge(deltas[i])
			if images[i] != nil {
				pending.byWindow[req.WindowName] = images[i]
			}
		}
		if fanErr != nil {
			return nil, fanErr
		}
	}

	return acc, nil
}

// execute runs one StageRequest against its downstream service and returns
// the resulting Delta. For Encode, the second return value carries the
// normalized image bytes so the caller can stash them for the Model stage.
func (e *Executor) execute(ctx context.Context, client *serviceclient.Client, baseURL string, kind RequestKind, req StageRequest) (Delta, []byte, error) {
	url := baseURL + downstreamPath[kind]

	switch kind {
	case KindDirectionAngle:
		wire, err := req.ToWire()
		if err != nil {
			return Delta{}, nil, gwerrors.Wrap(gwerrors.KindInternal, "encoder", err)
		}
		resp, err := client.PostJSON(ctx, url, wire)
		if err != nil {
			return Delta{}, nil, err
		}
		d, err := ParseDirectionAngleResponse(resp, req.WindowName)
		return d, nil, err

	case KindReferencePoint:
		wire, err := req.ToWire()
		if err != nil {
			return Delta{}, nil, gwerrors.Wrap(gwerrors.KindInternal, "encoder", err)
		}
		resp, err := client.PostJSON(ctx, url, wire)
		if err != nil {
			return Delta{}, nil, err
		}
		d, err := ParseReferencePointResponse(resp, req.WindowName)
		return d, nil, err

	case KindObstruction:
		wire, err := req.ToWire()
		if err != nil {
			return Delta{}, nil, gwerrors.Wrap(gwerrors.KindInternal, "obstruction", err)
		}
		resp, err := client.PostJSON(ctx, url, wire)
		if err != nil {
			return Delta{}, nil, err
		}
		d, err := ParseObstructionResponse(resp, req.WindowName)
		return d, nil, err

	case KindEncode:
		wire, err := req.ToWire()
		if err != nil {
			return Delta{}, nil, gwerrors.Wrap(gwerrors.KindInternal, "encoder", err)
		}
		raw, err := client.PostBinary(ctx, url, wire)
		if err != nil {
			return Delta{}, nil, err
		}
		result, err := ParseEncoderResponse(raw, req.WindowName)
		if err != nil {
			return Delta{}, nil, err
		}
		d := Delta{WindowName: req.WindowName, Image: result.Image, Mask: result.Mask}
		return d, result.Image, nil

	case KindModel:
		resp, err := client.PostMultipart(ctx, url, "file", req.WindowName+".png", req.EncodedImage, nil)
		if err != nil {
			return Delta{}, nil, err
		}
		d, err := ParseModelResponse(resp, req.WindowName)
		return d, nil, err

	case KindMerge:
		wire, err := req.ToWire()
		if err != nil {
			return Delta{}, nil, gwerrors.Wrap(gwerrors.KindInternal, "merger", err)
		}
		resp, err := client.PostJSON(ctx, url, wire)
		if err != nil {
			return Delta{}, nil, err
		}
		d, err := ParseMergerResponse(resp)
		return d, nil, err

	case KindStats:
		wire, err := req.ToWire()
		if err != nil {
			return Delta{}, nil, gwerrors.Wrap(gwerrors.KindInternal, "stats", err)
		}
		resp, err := client.PostJSON(ctx, url, wire)
		if err != nil {
			return Delta{}, nil, err
		}
		d, err := ParseStatsResponse(resp)
		return d, nil, err

	default:
		return Delta{}, nil, gwerrors.New(gwerrors.KindInternal, fmt.Sprintf("unhandled stage kind %q", kind))
	}
}
