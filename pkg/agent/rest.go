// SPDX-FileCopyrightText: 2026 Alvar Penning
// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"encoding/base64"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/metrics"
)

// RestAgent exposes a node over HTTP: payload submission, a status and
// metrics view, and a WebSocket stream of delivery records.
type RestAgent struct {
	endpoint bundle.EndpointID
	submit   SubmitFunc
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	listener net.Listener
	server   *http.Server

	clientMutex sync.Mutex
	clients     map[*websocket.Conn]struct{}

	receiver chan Message
	sender   chan Message
}

// RestSubmitRequest is the payload of POST /submit. Exactly one of Payload
// and PayloadBase64 should be set.
type RestSubmitRequest struct {
	Destination   string `json:"destination"`
	Payload       string `json:"payload,omitempty"`
	PayloadBase64 string `json:"payload_base64,omitempty"`
	LifetimeS     uint64 `json:"lifetime_s,omitempty"`
}

// RestSubmitResponse answers a submission with the created bundle's ID.
type RestSubmitResponse struct {
	BundleID string `json:"bundle_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RestStatus is the GET /status document.
type RestStatus struct {
	NodeID  string            `json:"node_id"`
	Metrics map[string]uint64 `json:"metrics"`
}

// NewRestAgent creates and starts a RestAgent bound to listenAddress. The
// submit function is the forwarding engine's entry point; holding it
// directly lets the HTTP handler answer with the bundle ID.
func NewRestAgent(endpoint bundle.EndpointID, listenAddress string, submit SubmitFunc, m *metrics.Metrics) (*RestAgent, error) {
	ln, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return nil, err
	}

	ra := &RestAgent{
		endpoint: endpoint,
		submit:   submit,
		metrics:  m,

		listener: ln,
		clients:  make(map[*websocket.Conn]struct{}),

		receiver: make(chan Message),
		sender:   make(chan Message),
	}

	router := mux.NewRouter()
	router.HandleFunc("/submit", ra.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/status", ra.handleStatus).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/deliveries/ws", ra.handleDeliveriesWs).Methods(http.MethodGet)

	ra.server = &http.Server{Handler: router}

	go func() {
		if err := ra.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("RestAgent's HTTP server errored")
		}
	}()
	go ra.handler()

	return ra, nil
}

// ListenAddress is the bound address, useful when the port was chosen by the
// kernel.
func (ra *RestAgent) ListenAddress() string {
	return ra.listener.Addr().String()
}

func (ra *RestAgent) handler() {
	defer close(ra.sender)

	for msg := range ra.receiver {
		switch msg := msg.(type) {
		case DeliveryMessage:
			ra.broadcastDelivery(msg)

		case ShutdownMessage:
			if err := ra.server.Close(); err != nil {
				log.WithError(err).Warn("Closing RestAgent's HTTP server errored")
			}

			ra.clientMutex.Lock()
			for conn := range ra.clients {
				_ = conn.Close()
			}
			ra.clients = make(map[*websocket.Conn]struct{})
			ra.clientMutex.Unlock()

			return

		default:
			log.WithField("message", msg).Debug("RestAgent ignores Message")
		}
	}
}

func (ra *RestAgent) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var (
		request  RestSubmitRequest
		response RestSubmitResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&request); jsonErr != nil {
		response.Error = jsonErr.Error()
	} else if dst, eidErr := bundle.NewEndpointID(request.Destination); eidErr != nil {
		response.Error = eidErr.Error()
	} else {
		payload := []byte(request.Payload)
		if request.PayloadBase64 != "" {
			if raw, b64Err := base64.StdEncoding.DecodeString(request.PayloadBase64); b64Err != nil {
				response.Error = b64Err.Error()
			} else {
				payload = raw
			}
		}

		if response.Error == "" {
			bid := ra.submit(dst, payload, request.LifetimeS)
			response.BundleID = bid.String()
		}
	}

	if response.Error != "" {
		w.WriteHeader(http.StatusBadRequest)
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Warn("Writing REST submit response errored")
	}
}

func (ra *RestAgent) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := RestStatus{
		NodeID:  ra.endpoint.String(),
		Metrics: ra.metrics.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.WithError(err).Warn("Writing REST status response errored")
	}
}

func (ra *RestAgent) handleDeliveriesWs(w http.ResponseWriter, r *http.Request) {
	conn, err := ra.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Upgrading delivery stream errored")
		return
	}

	ra.clientMutex.Lock()
	ra.clients[conn] = struct{}{}
	ra.clientMutex.Unlock()

	log.WithField("peer", conn.RemoteAddr()).Info("Delivery stream client connected")
}

func (ra *RestAgent) broadcastDelivery(msg DeliveryMessage) {
	ra.clientMutex.Lock()
	defer ra.clientMutex.Unlock()

	for conn := range ra.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(msg.Record); err != nil {
			log.WithFields(log.Fields{
				"peer":  conn.RemoteAddr(),
				"error": err,
			}).Info("Dropping delivery stream client")

			_ = conn.Close()
			delete(ra.clients, conn)
		}
	}
}

// Endpoints is the local node's endpoint.
func (ra *RestAgent) Endpoints() []bundle.EndpointID {
	return []bundle.EndpointID{ra.endpoint}
}

func (ra *RestAgent) MessageReceiver() chan Message {
	return ra.receiver
}

func (ra *RestAgent) MessageSender() chan Message {
	return ra.sender
}
