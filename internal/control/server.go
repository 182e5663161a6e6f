// Package control exposes the running bot to external agents over MCP.
// Clients connect on a websocket and get tools to inspect the voice
// session and flip its activation mode.
package control

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/discord-voice-pilot/internal/config"
	"github.com/discord-voice-pilot/internal/discord"
	"github.com/discord-voice-pilot/internal/logging"
)

// Controller is the slice of the gateway the control surface needs.
type Controller interface {
	Status() discord.SessionStatus
	SetMode(mode config.ActivationMode) bool
}

// Server serves MCP sessions over websocket. Each accepted websocket is
// bridged to the SDK as a transport; sessions are independent.
type Server struct {
	ctrl Controller
	mcp  *mcp.Server
	http *http.Server
}

type setModeInput struct {
	Mode string `json:"mode" jsonschema:"activation mode: wake_word or always_active"`
}

type setModeOutput struct {
	Applied bool   `json:"applied"`
	Mode    string `json:"mode"`
}

func NewServer(addr string, ctrl Controller) *Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "voice-pilot-control", Version: "v1.0.0"}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "voice_status",
		Description: "Report the bot's current voice session: channel, activation mode, speakers, playback state.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, discord.SessionStatus, error) {
		return nil, ctrl.Status(), nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "voice_set_mode",
		Description: "Switch the activation mode of the live voice session.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in setModeInput) (*mcp.CallToolResult, setModeOutput, error) {
		mode := config.ActivationMode(in.Mode)
		if mode != config.ModeWakeWord && mode != config.ModeAlwaysActive {
			return nil, setModeOutput{}, fmt.Errorf("unknown mode %q", in.Mode)
		}
		applied := ctrl.SetMode(mode)
		return nil, setModeOutput{Applied: applied, Mode: string(mode)}, nil
	})

	s := &Server{ctrl: ctrl, mcp: srv}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/mcp/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("control: ws upgrade failed", "err", err)
			return
		}
		go s.serveSession(conn)
	})
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

func (s *Server) serveSession(conn *websocket.Conn) {
	sess, err := s.mcp.Connect(context.Background(), newWSTransport(conn), nil)
	if err != nil {
		logging.Errorw("control: mcp connect failed", "err", err)
		_ = conn.Close()
		return
	}
	if err := sess.Wait(); err != nil {
		logging.Debugw("control: session ended", "err", err)
	}
}

// ListenAndServe blocks serving the control endpoint.
func (s *Server) ListenAndServe() error {
	logging.Infow("control: listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
