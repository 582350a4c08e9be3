package rpcServer

import (
	"net/http"

	"github.com/tesola/staking-sync/internal/version"
)

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

func (s *RpcServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, true, "ok", &healthResponse{
		Status:  "serving",
		Version: version.GetVersion(),
		Commit:  version.GetCommit(),
	})
}
