// Package shaper implements the Response Shaper: formats a finished
// Accumulator into the endpoint-specific HTTP response body, choosing
// between a binary payload and a JSON envelope per spec §4.5.
package shaper

import (
	"encoding/json"
	"net/http"

	"github.com/upskiller-xyz/lux-gateway/internal/npz"
	"github.com/upskiller-xyz/lux-gateway/internal/pipeline"
)

// WriteResponse renders acc as the HTTP response for endpoint, using alias
// to pick between /horizon and /zenith's single-key response shape where
// the canonical endpoint serves both.
func WriteResponse(w http.ResponseWriter, endpoint pipeline.Endpoint, alias string, acc *pipeline.Accumulator) {
	if acc.Image != nil && acc.Result == nil {
		writeBinary(w, acc.Image)
		return
	}

	body := map[string]interface{}{"status": "success"}

	switch endpoint {
	case pipeline.EndpointSimulate:
		body["result"] = acc.Result
		body["mask"] = acc.ResultMask
	case pipeline.EndpointObstruction:
		writeObstructionScalar(w, alias, acc)
		return
	case pipeline.EndpointObstructionAll:
		body["horizon"] = acc.Horizon
		body["zenith"] = acc.Zenith
	case pipeline.EndpointCalculateDirection:
		body["direction_angle"] = acc.DirectionAngle
	case pipeline.EndpointGetReferencePoint:
		body["reference_point"] = acc.ReferencePoint
	case pipeline.EndpointMerge:
		body["result"] = acc.Result
		body["mask"] = acc.ResultMask
	case pipeline.EndpointStats:
		for k, v := range acc.Stats {
			body[k] = v
		}
	}

	writeJSON(w, http.StatusOK, body)
}

// writeObstructionScalar implements the single-call obstruction response:
// /obstruction returns both horizon and zenith, /horizon and /zenith each
// return only their own key, per spec §6's response column. The values are
// the horizon/zenith arrays parsed from the Obstruction service's reply, not
// single floats.
func writeObstructionScalar(w http.ResponseWriter, alias string, acc *pipeline.Accumulator) {
	body := map[string]interface{}{"status": "success"}
	switch alias {
	case "horizon":
		body["horizon"] = acc.RootHorizon
	case "zenith":
		body["zenith"] = acc.RootZenith
	default:
		body["horizon"] = acc.RootHorizon
		body["zenith"] = acc.RootZenith
	}
	writeJSON(w, http.StatusOK, body)
}

func writeBinary(w http.ResponseWriter, image []byte) {
	if npz.IsZIP(image) {
		w.Header().Set("Content-Type", "application/octet-stream")
	} else {
		w.Header().Set("Content-Type", "image/png")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
