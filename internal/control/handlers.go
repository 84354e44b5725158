package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nymtech/nym-vpnd-core/internal/account"
	"github.com/nymtech/nym-vpnd-core/internal/config"
	"github.com/nymtech/nym-vpnd-core/internal/gateway"
	"github.com/nymtech/nym-vpnd-core/internal/vpn"
)

// handler holds the Deps every /v1 endpoint is dispatched against.
type handler struct {
	deps Deps
	log  *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Status: "error", Description: err.Error()})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, okResponse{Status: "ok"})
}

// serveInfo answers the info call (spec §4.M info) with {"status":"ok"}
// only; it reports neither the daemon's version nor its network
// environment.
func (h *handler) serveInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

type setNetworkRequest struct {
	Name string `json:"name"`
}

// serveSetNetwork validates the environment name and hands off to the
// daemon-supplied callback (spec §4.M setNetwork).
func (h *handler) serveSetNetwork(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req setNetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := config.EnvironmentForName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if h.deps.SetNetwork == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("control: setNetwork not wired"))
		return
	}
	if err := h.deps.SetNetwork(req.Name); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeOK(w)
}

// serveConnect maps the request body onto tunnel.Settings, installs them,
// and starts a connect attempt (spec §4.M connect).
func (h *handler) serveConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	settings, err := req.toSettings()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.deps.VPN.SetTunnelSettings(settings); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err := h.deps.VPN.Connect(); err != nil {
		switch {
		case errors.Is(err, vpn.ErrNotReadyToConnect):
			writeError(w, http.StatusPreconditionFailed, err)
		case errors.Is(err, vpn.ErrAlreadyConnecting):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeOK(w)
}

// serveDisconnect tears down the current tunnel attempt (spec §4.M
// disconnect).
func (h *handler) serveDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if err := h.deps.VPN.Disconnect(); err != nil {
		if errors.Is(err, vpn.ErrNotConnected) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeOK(w)
}

type stateResponse struct {
	Phase string `json:"phase"`
	Entry string `json:"entry_gateway,omitempty"`
	Exit  string `json:"exit_gateway,omitempty"`
	Error string `json:"error,omitempty"`
}

func toStateResponse(s vpn.State) stateResponse {
	resp := stateResponse{Phase: s.Phase.String()}
	if s.Phase == vpn.PhaseConnected {
		resp.Entry = s.Connection.EntryGateway.Identity.String()
		resp.Exit = s.Connection.ExitGateway.Identity.String()
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

// serveStatus reports the current tunnel state (spec §4.M status).
func (h *handler) serveStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(h.deps.VPN.State()))
}

func parsePerformanceOptions(r *http.Request) gateway.PerformanceOptions {
	return gateway.PerformanceOptions{
		MinMixnetPerformance: atoiOrZero(r.URL.Query().Get("min_mixnet_performance")),
		MinVpnPerformance:    atoiOrZero(r.URL.Query().Get("min_vpn_performance")),
	}
}

func parseKind(r *http.Request) gateway.Kind {
	if r.URL.Query().Get("kind") == "exit" {
		return gateway.KindExit
	}
	return gateway.KindEntry
}

func atoiOrZero(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// serveListGateways returns every gateway satisfying the request's
// performance filter (spec §4.M listGateways(kind, minPerf)).
func (h *handler) serveListGateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := h.deps.Gateways.ListGateways(r.Context(), parseKind(r), parsePerformanceOptions(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]gatewayResponse, 0, len(gateways))
	for _, g := range gateways {
		out = append(out, toGatewayResponse(g))
	}
	writeJSON(w, http.StatusOK, out)
}

// serveListCountries returns the distinct locations satisfying the
// request's performance filter (spec §4.M listCountries(kind, minPerf)).
func (h *handler) serveListCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.deps.Gateways.ListCountries(r.Context(), parseKind(r), parsePerformanceOptions(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, countries)
}

type storeAccountRequest struct {
	Mnemonic string `json:"mnemonic"`
}

// serveAccount handles both storeAccount (POST) and getAccountState (GET)
// (spec §4.M storeAccount, getAccountState).
func (h *handler) serveAccount(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, toAccountStateResponse(h.deps.Account.State()))
	case http.MethodPost:
		var req storeAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.deps.Account.StoreAccount(r.Context(), req.Mnemonic); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeOK(w)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

type accountStateResponse struct {
	MnemonicID   string `json:"mnemonic_id,omitempty"`
	Stored       bool   `json:"stored"`
	Account      string `json:"account,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	Device       string `json:"device,omitempty"`
}

func toAccountStateResponse(s account.State) accountStateResponse {
	return accountStateResponse{
		MnemonicID: s.MnemonicID,
		Stored:     s.Mnemonic == account.MnemonicStored,
	}
}

// serveForgetAccount removes the stored mnemonic and every derived local
// record (spec §4.M forgetAccount).
func (h *handler) serveForgetAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if err := h.deps.Account.ForgetAccount(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeOK(w)
}

// serveIsReadyToConnect reports isAccountStored and isReadyToConnect
// together (spec §4.M isAccountStored, isReadyToConnect).
func (h *handler) serveIsReadyToConnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		AccountStored  bool `json:"account_stored"`
		ReadyToConnect bool `json:"ready_to_connect"`
	}{
		AccountStored:  h.deps.Account.IsAccountStored(),
		ReadyToConnect: h.deps.Account.ReadyToConnect(),
	})
}

// serveGetUsage returns the account's billing-period usage records (spec
// §4.L GetUsage, exposed here for control-surface completeness).
func (h *handler) serveGetUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.deps.Account.GetUsage(r.Context())
	if err != nil {
		writeAccountErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func writeAccountErr(w http.ResponseWriter, err error) {
	if errors.Is(err, account.ErrNoAccountStored) {
		writeError(w, http.StatusPreconditionFailed, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

// serveDevices returns every device ever registered under the stored
// account (spec §4.M getDevices).
func (h *handler) serveDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deps.Account.GetDevices(r.Context())
	if err != nil {
		writeAccountErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// serveActiveDevices returns only the currently-active devices (spec §4.M
// getActiveDevices).
func (h *handler) serveActiveDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deps.Account.GetActiveDevices(r.Context())
	if err != nil {
		writeAccountErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// serveRegisterDevice registers this device's identity against the
// account (spec §4.M registerDevice).
func (h *handler) serveRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if err := h.deps.Account.RegisterDevice(r.Context()); err != nil {
		writeAccountErr(w, err)
		return
	}
	writeOK(w)
}

// serveDeviceIdentity handles getDeviceIdentity (GET) and
// resetDeviceIdentity (POST) (spec §4.M).
func (h *handler) serveDeviceIdentity(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		id, err := h.deps.Account.GetDeviceIdentity()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Identity string `json:"identity"`
		}{Identity: id})
	case http.MethodPost:
		id, err := h.deps.Account.ResetDeviceIdentity(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Identity string `json:"identity"`
		}{Identity: id})
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

// serveRequestZkNym kicks off a zk-nym withdrawal/import cycle (spec §4.M
// requestZkNym).
func (h *handler) serveRequestZkNym(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if err := h.deps.Account.RequestZkNym(r.Context()); err != nil {
		writeAccountErr(w, err)
		return
	}
	writeOK(w)
}

// serveGetZkNymByID looks up one previously-requested zk-nym's outcome
// (spec §4.M getZkNymById).
func (h *handler) serveGetZkNymByID(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	result, found := h.deps.Account.GetZkNymById(id)
	if !found {
		writeError(w, http.StatusNotFound, errors.New("control: zk-nym id not found"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type confirmZkNymRequest struct {
	ID string `json:"id"`
}

// serveConfirmZkNymDownloaded marks a zk-nym as downloaded (spec §4.M
// confirmZkNymDownloaded).
func (h *handler) serveConfirmZkNymDownloaded(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req confirmZkNymRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.deps.Account.ConfirmZkNymDownloaded(r.Context(), req.ID); err != nil {
		writeAccountErr(w, err)
		return
	}
	writeOK(w)
}

// serveGetAvailableTickets reports remaining ticketbook balances (spec
// §4.M getAvailableTickets).
func (h *handler) serveGetAvailableTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.deps.Account.GetAvailableTickets(r.Context())
	if err != nil {
		writeAccountErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}
