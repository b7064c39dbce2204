// Package debugsrv exposes a read-only HTTP introspection surface over a
// *client.Client: watch registry ref counts, the progress tracker's table,
// and connection health. It never touches the wire protocol itself and is
// never started automatically — callers (tests, peerdrivectl --debug-addr)
// mount it explicitly.
package debugsrv

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/orbaslabs/peerdrive/client"
)

// New builds a chi router exposing /watches, /progress and /health for c.
func New(c *client.Client) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/watches", handleWatches(c))
	r.Get("/progress", handleProgress(c))
	r.Get("/health", handleHealth(c))

	return r
}

type watchRefCountJSON struct {
	Kind     string `json:"kind"`
	Element  string `json:"element"`
	RefCount int    `json:"ref_count"`
}

func handleWatches(c *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refs := c.WatchSnapshot()
		out := make([]watchRefCountJSON, 0, len(refs))
		for _, ref := range refs {
			kind := "doc"
			if ref.Kind == client.WatchRev {
				kind = "rev"
			}
			out = append(out, watchRefCountJSON{
				Kind:     kind,
				Element:  hex.EncodeToString(ref.Element),
				RefCount: ref.RefCount,
			})
		}
		writeJSON(w, out)
	}
}

type progressEntryJSON struct {
	Tag         uint64 `json:"tag"`
	Replication bool   `json:"replication"`
	SrcStore    string `json:"src_store"`
	DstStore    string `json:"dst_store"`
	Item        string `json:"item"`
	Paused      bool   `json:"paused"`
	ErrorCode   int32  `json:"error_code"`
	Permille    uint32 `json:"permille"`
}

func handleProgress(c *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := c.ProgressSnapshot()
		out := make([]progressEntryJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, progressEntryJSON{
				Tag:         e.Tag,
				Replication: e.Replication,
				SrcStore:    hex.EncodeToString(e.SrcStore),
				DstStore:    hex.EncodeToString(e.DstStore),
				Item:        hex.EncodeToString(e.Item),
				Paused:      e.Paused,
				ErrorCode:   e.ErrorCode,
				Permille:    e.Permille,
			})
		}
		writeJSON(w, out)
	}
}

type healthJSON struct {
	State         string `json:"state"`
	MaxPacketSize uint32 `json:"max_packet_size"`
	ConnID        string `json:"conn_id"`
}

func handleHealth(c *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, healthJSON{
			State:         c.State().String(),
			MaxPacketSize: c.MaxPacketSize(),
			ConnID:        c.ConnID(),
		})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
