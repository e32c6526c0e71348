package endpointtest

import (
	"errors"
	"net/http"

	"github.com/jobhub-dev/jobhub/pkg/hubcore"
)

// failure is the body for requests rejected before any outbound call.
type failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Handler serves POST /api/test-endpoint. Invalid input gets a 400; any
// outcome of the outbound request, including downstream errors, gets a 200.
func (t *Tester) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := hubcore.DecodeJSON(w, r, &req); err != nil {
			hubcore.JSON(w, http.StatusBadRequest, failure{Error: err.Error()})
			return
		}

		res, err := t.Run(r.Context(), req)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				hubcore.JSON(w, http.StatusBadRequest, failure{Error: ve.Message})
				return
			}
			hubcore.JSON(w, http.StatusOK, failure{Error: err.Error()})
			return
		}
		hubcore.JSON(w, http.StatusOK, res)
	}
}
