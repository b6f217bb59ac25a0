package server

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/document"
)

// ── Document ─────────────────────────────────────────────────────────

func (s *Server) getDocument(c fiber.Ctx) error {
	return c.JSON(s.rt.Document())
}

// putDocument replaces the graph. Entries the store rejects do not fail
// the request; they are listed under "rejected".
func (s *Server) putDocument(c fiber.Ctx) error {
	var doc document.Document
	if err := bindJSON(c, &doc); err != nil {
		return err
	}
	if err := document.Validate(&doc); err != nil {
		return badRequest{err: err}
	}

	err := s.rt.ReplaceDocument(&doc)
	var merr *multierror.Error
	if err != nil && !errors.As(err, &merr) {
		return err
	}
	rejected := []string{}
	if merr != nil {
		for _, e := range merr.Errors {
			rejected = append(rejected, e.Error())
		}
	}
	return c.JSON(fiber.Map{"document": s.rt.Document(), "rejected": rejected})
}

func (s *Server) saveDocument(c fiber.Ctx) error {
	if s.rt.Repository() == nil {
		return fiber.NewError(fiber.StatusConflict, "no repository configured")
	}
	if err := s.rt.Save(c.Context()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ── Nodes ────────────────────────────────────────────────────────────

// nodeRequest is the body of POST /nodes. An empty id is generated.
type nodeRequest struct {
	ID       dataflow.NodeID         `json:"id"`
	Type     dataflow.TypeName       `json:"type"`
	ParentID dataflow.NodeID         `json:"parentId"`
	Position dataflow.Position       `json:"position"`
	Data     map[string]any          `json:"data"`
	Mode     dataflow.Mode           `json:"mode"`
	Inputs   []dataflow.InputSchema  `json:"inputs"`
	Outputs  []dataflow.OutputSchema `json:"outputs"`
}

func (s *Server) listNodes(c fiber.Ctx) error {
	nodes := s.rt.Store().Nodes()
	if nodes == nil {
		nodes = []*dataflow.Node{}
	}
	return c.JSON(nodes)
}

func (s *Server) getNode(c fiber.Ctx) error {
	n, ok := s.rt.Store().Node(dataflow.NodeID(c.Params("id")))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "node not found")
	}
	return c.JSON(n)
}

func (s *Server) createNode(c fiber.Ctx) error {
	var req nodeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.ID == "" {
		req.ID = dataflow.NodeID("node-" + uuid.NewString())
	}
	err := s.rt.Store().CreateNode(dataflow.NodeSpec{
		ID:       req.ID,
		Type:     req.Type,
		ParentID: req.ParentID,
		Position: req.Position,
		Data:     req.Data,
		Mode:     req.Mode,
		Inputs:   req.Inputs,
		Outputs:  req.Outputs,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": req.ID})
}

func (s *Server) deleteNode(c fiber.Ctx) error {
	if err := s.rt.Store().DeleteNode(dataflow.NodeID(c.Params("id"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) renameNode(c fiber.Ctx) error {
	var req struct {
		ID dataflow.NodeID `json:"id"`
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := s.rt.Store().RenameNode(dataflow.NodeID(c.Params("id")), req.ID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": req.ID})
}

func (s *Server) updateData(c fiber.Ctx) error {
	var data map[string]any
	if err := bindJSON(c, &data); err != nil {
		return err
	}
	if err := s.rt.Store().UpdateData(dataflow.NodeID(c.Params("id")), data); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ── Edges ────────────────────────────────────────────────────────────

func (s *Server) listEdges(c fiber.Ctx) error {
	edges := s.rt.Store().Edges()
	if edges == nil {
		edges = []*dataflow.Edge{}
	}
	return c.JSON(edges)
}

func (s *Server) createEdge(c fiber.Ctx) error {
	var req dataflow.EdgeSpec
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	id, err := s.rt.Store().CreateEdge(req.Source, req.Target)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

func (s *Server) deleteEdge(c fiber.Ctx) error {
	raw, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return badRequest{err: err}
	}
	if err := s.rt.Store().DeleteEdge(dataflow.EdgeID(raw)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ── Graph errors ─────────────────────────────────────────────────────

func (s *Server) listErrors(c fiber.Ctx) error {
	errs := s.rt.Store().GraphErrors()
	if errs == nil {
		errs = []dataflow.GraphError{}
	}
	return c.JSON(errs)
}

func (s *Server) pruneErrors(c fiber.Ctx) error {
	pruned, err := s.rt.Store().PruneInvalidEdges()
	if err != nil {
		return err
	}
	if pruned == nil {
		pruned = []dataflow.EdgeID{}
	}
	return c.JSON(fiber.Map{"pruned": pruned})
}

// ── Engine ───────────────────────────────────────────────────────────

func (s *Server) engineState(c fiber.Ctx) error {
	return c.JSON(s.rt.Engine().State())
}

func (s *Server) startEngine(c fiber.Ctx) error {
	s.rt.Engine().Start()
	return c.JSON(s.rt.Engine().State())
}

func (s *Server) stopEngine(c fiber.Ctx) error {
	abort := false
	if q := c.Query("abort"); q != "" {
		v, err := strconv.ParseBool(q)
		if err != nil {
			return badRequest{err: errors.New("abort must be a boolean")}
		}
		abort = v
	}
	s.rt.Engine().Stop(dataflow.StopOptions{ShouldAbort: abort})
	return c.JSON(s.rt.Engine().State())
}

func (s *Server) queueNode(c fiber.Ctx) error {
	if err := s.rt.Engine().QueueNode(dataflow.NodeID(c.Params("id"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) setTickSpeed(c fiber.Ctx) error {
	var req struct {
		TickSpeed *dataflow.TickSpeed `json:"tickSpeed"`
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if req.TickSpeed == nil {
		return badRequest{err: errors.New("tickSpeed is required")}
	}
	s.rt.Engine().SetTickSpeed(*req.TickSpeed)
	return c.JSON(s.rt.Engine().State())
}
