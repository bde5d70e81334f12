package http

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"pockets/internal/core"
	"pockets/internal/log"
)

func (s *Server) handleListPockets(w http.ResponseWriter, r *http.Request) {
	pockets := s.ledger.Pockets()
	if c := strings.TrimSpace(r.URL.Query().Get("category")); c != "" {
		category, err := core.ParseCategory(c)
		if err != nil {
			s.fail(w, r, log.OpList, err)
			return
		}
		filtered := pockets[:0]
		for _, p := range pockets {
			if p.Category == category {
				filtered = append(filtered, p)
			}
		}
		pockets = filtered
	}
	s.respond(w, r, NewJSONResponse().Data(s.pocketViews(pockets)))
}

func (s *Server) handleCreatePocket(w http.ResponseWriter, r *http.Request) {
	var req createPocketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	draft, err := req.draft()
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	p, err := s.ledger.Add(r.Context(), draft)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	s.logMutation(r, log.OpCreate, p, nil)
	s.respond(w, r, NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/pockets/"+p.ID).
		Data(s.pocketView(p, true)).
		Notify(NotificationSuccess, fmt.Sprintf("%s created", p.Name)))
}

func (s *Server) handleGetPocket(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Pocket(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	s.respond(w, r, NewJSONResponse().Data(s.pocketView(p, true)))
}

func (s *Server) handleUpdatePocket(w http.ResponseWriter, r *http.Request) {
	var req updatePocketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	p, err := s.ledger.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.logMutation(r, log.OpUpdate, p, nil)
	s.respond(w, r, NewJSONResponse().
		Data(s.pocketView(p, true)).
		Notify(NotificationSuccess, fmt.Sprintf("%s updated", p.Name)))
}

func (s *Server) handleDeletePocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.ledger.Remove(r.Context(), id); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	s.logMutation(r, log.OpDelete, core.Pocket{ID: id}, nil)
	s.respond(w, r, NewJSONResponse().Status(http.StatusNoContent))
}

// handleReset wipes every pocket. It requires ?confirm=reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "reset" {
		s.fail(w, r, log.OpDelete, badRequest(http.StatusBadRequest, "add ?confirm=reset to delete every pocket"))
		return
	}
	if err := s.ledger.Reset(r.Context()); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	// Reset clears the stored reminder settings too.
	if s.settings != nil {
		if err := s.settings.Initialize(r.Context()); err != nil {
			s.fail(w, r, log.OpDelete, err)
			return
		}
	}
	s.respond(w, r, NewJSONResponse().
		Data(map[string]int{"pockets": 0}).
		Notify(NotificationInfo, "All data cleared"))
}

func (s *Server) handleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	draft, err := req.draft()
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	id := r.PathValue("id")
	t, err := s.ledger.AddTransaction(r.Context(), id, draft)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	s.logMutation(r, log.OpCreate, core.Pocket{ID: id}, log.NewFields().WithTransaction(t))
	s.respond(w, r, NewJSONResponse().
		Status(http.StatusCreated).
		Data(s.transactionView(t, id, "")).
		Notify(NotificationSuccess, "Transaction recorded"))
}

func (s *Server) handlePayBill(w http.ResponseWriter, r *http.Request) {
	var req payBillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, log.OpPay, err)
		return
	}
	if strings.TrimSpace(req.SourceID) == "" {
		s.fail(w, r, log.OpPay, badRequest(http.StatusBadRequest, "source_id is required"))
		return
	}
	res, err := s.ledger.TransferForBillPayment(r.Context(), r.PathValue("id"), req.SourceID)
	if err != nil {
		s.fail(w, r, log.OpPay, err)
		return
	}
	s.logMutation(r, log.OpPay, res.Bill, log.NewFields().WithTransaction(res.Payment))
	s.respond(w, r, NewJSONResponse().Data(billPaymentView{
		Bill:     s.pocketView(res.Bill, false),
		Source:   s.pocketView(res.Source, false),
		Payment:  s.transactionView(res.Payment, res.Bill.ID, res.Bill.Name),
		Transfer: s.transactionView(res.Transfer, res.Source.ID, res.Source.Name),
	}))
}

// handleListTransactions lists every transaction, newest first.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	pockets, _ := s.ledger.Snapshot()
	txns := core.Flatten(pockets)
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Transaction.Date.After(txns[j].Transaction.Date)
	})
	out := make([]transactionView, 0, len(txns))
	for _, pt := range txns {
		out = append(out, s.transactionView(pt.Transaction, pt.PocketID, pt.PocketName))
	}
	s.respond(w, r, NewJSONResponse().Data(out))
}
