package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/trailmesh/navcore/pkg/alerts"
	"github.com/trailmesh/navcore/pkg/dispatch"
	"github.com/trailmesh/navcore/pkg/fusion"
	"github.com/trailmesh/navcore/pkg/geo"
	"github.com/trailmesh/navcore/pkg/logx"
	"github.com/trailmesh/navcore/pkg/positioning"
)

// This file is the reference ingest/status adapter described in
// SPEC_FULL.md §6: a minimal HTTP status surface (gorilla/mux) and a
// streaming WebSocket ingest channel (gorilla/websocket) on top of
// pkg/dispatch. It is illustrative wiring, not a specified REST/WS
// contract — the core's transport mapping is an external-adapter concern
// per spec.md §1.

// vec3Wire is the {x,y,z} wire shape for accelerometer/gyroscope/
// magnetometer samples.
type vec3Wire struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v vec3Wire) toVec3() fusion.Vec3 { return fusion.Vec3{X: v.X, Y: v.Y, Z: v.Z} }

type gpsWire struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

type rssiBeaconWire struct {
	DeviceID string `json:"deviceId"`
	RSSI     int    `json:"rssi"`
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"position"`
}

// ingestWire is the wire shape of spec.md §6's ingest(payload).
type ingestWire struct {
	DeviceID      string           `json:"deviceId"`
	Accelerometer vec3Wire         `json:"accelerometer"`
	Gyroscope     vec3Wire         `json:"gyroscope"`
	Magnetometer  vec3Wire         `json:"magnetometer"`
	GPS           *gpsWire         `json:"gps,omitempty"`
	IsBaseStation bool             `json:"isBaseStation,omitempty"`
	RSSIBeacons   []rssiBeaconWire `json:"rssiBeacons,omitempty"`
	TimestampMs   int64            `json:"timestamp,omitempty"`
}

func (w ingestWire) toPacket() dispatch.Packet {
	pkt := dispatch.Packet{
		DeviceID:      w.DeviceID,
		Accelerometer: w.Accelerometer.toVec3(),
		Gyroscope:     w.Gyroscope.toVec3(),
		Magnetometer:  w.Magnetometer.toVec3(),
		IsBaseStation: w.IsBaseStation,
	}
	if w.GPS != nil {
		pkt.GPS = &positioning.GPSFix{Lat: w.GPS.Lat, Lng: w.GPS.Lng, Accuracy: w.GPS.Accuracy}
	}
	for _, b := range w.RSSIBeacons {
		pkt.RSSIBeacons = append(pkt.RSSIBeacons, dispatch.RSSIBeacon{
			DeviceID: b.DeviceID,
			RSSI:     b.RSSI,
			X:        b.Position.X,
			Y:        b.Position.Y,
		})
	}
	if w.TimestampMs > 0 {
		pkt.Timestamp = time.UnixMilli(w.TimestampMs)
	}
	return pkt
}

// registerWire is the wire shape of spec.md §6's register(deviceId, {...}).
type registerWire struct {
	DeviceID      string `json:"deviceId"`
	IsBaseStation bool   `json:"isBaseStation"`
	KnownPosition *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"knownPosition,omitempty"`
}

// newRouter builds the HTTP status/summary surface: health, device
// summary, raw (non-deduplicated) proximity scan, and registration.
func newRouter(dispatcher *dispatch.Dispatcher, logger *logx.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, dispatcher.ListDevices())
	}).Methods(http.MethodGet)

	r.HandleFunc("/alerts/scan", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, dispatcher.ScanAlerts())
	}).Methods(http.MethodGet)

	r.HandleFunc("/devices/register", func(w http.ResponseWriter, r *http.Request) {
		var in registerWire
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.DeviceID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var known *geo.Point
		if in.KnownPosition != nil {
			known = &geo.Point{Lat: in.KnownPosition.Lat, Lng: in.KnownPosition.Lng}
		}
		writeJSON(w, logger, http.StatusOK, dispatcher.Register(in.DeviceID, in.IsBaseStation, known))
	}).Methods(http.MethodPost)

	r.HandleFunc("/ws", newWebSocketHandler(dispatcher, logger))

	return r
}

func writeJSON(w http.ResponseWriter, logger *logx.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Debug("failed to encode response body", "error", err.Error())
	}
}

// wsHub fans every dispatch event out to connected WebSocket clients. It
// implements dispatch.EventSink so it can be registered alongside the
// MQTT and logging sinks in cmd/telemetryd's main wiring.
type wsHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	logger  *logx.Logger
}

func newWSHub(logger *logx.Logger) *wsHub {
	return &wsHub{clients: make(map[*websocket.Conn]struct{}), logger: logger}
}

func (h *wsHub) add(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *wsHub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *wsHub) broadcast(topic string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("failed to marshal ws broadcast", "topic", topic, "error", err.Error())
		return
	}
	msg, err := json.Marshal(envelope{Type: topic, Payload: raw})
	if err != nil {
		h.logger.Warn("failed to marshal ws broadcast", "topic", topic, "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("ws broadcast write failed, dropping client", "error", err.Error())
			delete(h.clients, c)
			c.Close()
		}
	}
}

func (h *wsHub) PositionUpdate(e dispatch.PositionUpdate) { h.broadcast("position:update", e) }
func (h *wsHub) Alert(a alerts.Alert)                     { h.broadcast("alert", a) }
func (h *wsHub) DeviceLeft(e dispatch.DeviceLeft)         { h.broadcast("device:left", e) }
func (h *wsHub) Registered(e dispatch.Registered)         { h.broadcast("registered", e) }

// envelope is the {type, payload} shape every WebSocket message (in
// either direction) uses on the reference adapter.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// newWebSocketHandler upgrades the connection and runs the read loop for
// one subscriber: inbound "sensor:update" messages are fused and
// dispatched, "device:list:request" gets an immediate reply, and a
// closed connection triggers Disconnect for whatever deviceId the
// connection last ingested for, per spec.md §4.7.
func newWebSocketHandler(dispatcher *dispatch.Dispatcher, logger *logx.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("websocket upgrade failed", "error", err.Error())
			return
		}
		defer conn.Close()

		var boundDeviceID string
		defer func() {
			if boundDeviceID != "" {
				dispatcher.Disconnect(boundDeviceID)
			}
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				logger.Debug("dropping malformed ws envelope", "error", err.Error())
				continue
			}

			switch env.Type {
			case "sensor:update":
				var in ingestWire
				if err := json.Unmarshal(env.Payload, &in); err != nil || in.DeviceID == "" {
					continue // malformed packet: dropped silently, spec.md §4.9
				}
				boundDeviceID = in.DeviceID
				dispatcher.Ingest(r.Context(), in.toPacket())

			case "device:list:request":
				reply, err := json.Marshal(envelope{Type: "device:list", Payload: mustJSON(dispatcher.ListDevices())})
				if err == nil {
					_ = conn.WriteMessage(websocket.TextMessage, reply)
				}

			default:
				logger.Debug("dropping unrecognized ws message type", "type", env.Type)
			}
		}
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
