package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/models"
	"github.com/nodeledger/nodeledger/internal/objects"
)

// targetVersion reads ?version=X.Y, defaulting to the current version
func targetVersion(c *fiber.Ctx) (objects.Version, error) {
	raw := c.Query("version")
	if raw == "" {
		return objects.ComputeNodeVersion(), nil
	}
	v, err := objects.ParseVersion(raw)
	if err != nil {
		return objects.Version{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return v, nil
}

func int64Param(c *fiber.Ctx, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name+": "+c.Params(name))
	}
	return v, nil
}

func renderNode(c *fiber.Ctx, n *objects.ComputeNode) error {
	target, err := targetVersion(c)
	if err != nil {
		return err
	}
	p, err := n.ToPrimitiveAt(target)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func renderList(c *fiber.Ctx, l *objects.ComputeNodeList) error {
	target, err := targetVersion(c)
	if err != nil {
		return err
	}
	p, err := l.ToPrimitiveAt(target)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// ListComputeNodes returns every compute node, or those whose hypervisor
// hostname matches ?hypervisor=
func (h *Handler) ListComputeNodes(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var (
		list *objects.ComputeNodeList
		err  error
	)
	if pattern := c.Query("hypervisor"); pattern != "" {
		list, err = h.nodes.GetByHypervisor(ctx, pattern)
	} else {
		list, err = h.nodes.GetAll(ctx)
	}
	if err != nil {
		return err
	}
	return renderList(c, list)
}

// GetComputeNode returns one compute node by id
func (h *Handler) GetComputeNode(c *fiber.Ctx) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}
	n, err := h.nodes.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return renderNode(c, n)
}

// CreateComputeNode creates a compute node from a field map
func (h *Handler) CreateComputeNode(c *fiber.Ctx) error {
	var req models.CreateComputeNodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if len(req) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "no fields given")
	}

	n := h.nodes.New()
	for field, v := range req {
		if err := n.Set(field, v); err != nil {
			if _, known := objects.ComputeNodeSchema().Field(field); !known {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return err
		}
	}

	if err := n.Create(c.UserContext()); err != nil {
		return err
	}
	logging.Ctx(c.UserContext()).Info("Compute node created", "node", n.String())

	c.Status(fiber.StatusCreated)
	return renderNode(c, n)
}

// UpdateComputeNodeResources applies a virt driver resource report and
// saves the changed fields
func (h *Handler) UpdateComputeNodeResources(c *fiber.Ctx) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}

	var req models.UpdateResourcesRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}

	ctx := c.UserContext()
	n, err := h.nodes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := n.UpdateFromVirtDriver(req); err != nil {
		return err
	}
	if err := n.Save(ctx); err != nil {
		return err
	}
	return renderNode(c, n)
}

// DeleteComputeNode soft-deletes a compute node
func (h *Handler) DeleteComputeNode(c *fiber.Ctx) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	n, err := h.nodes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := n.Destroy(ctx); err != nil {
		return err
	}
	logging.Ctx(ctx).Info("Compute node deleted", "id", id)
	return c.SendStatus(fiber.StatusNoContent)
}

// GetServiceComputeNodes returns the nodes of a service. ?first=true
// returns only the first one.
func (h *Handler) GetServiceComputeNodes(c *fiber.Ctx) error {
	serviceID, err := int64Param(c, "service_id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	if c.QueryBool("first") {
		n, err := h.nodes.GetByServiceID(ctx, serviceID)
		if err != nil {
			return err
		}
		return renderNode(c, n)
	}

	svc, err := h.services.GetByID(ctx, serviceID)
	if err != nil {
		return err
	}
	list, err := h.nodes.GetByService(ctx, svc)
	if err != nil {
		return err
	}
	return renderList(c, list)
}

// GetHostComputeNodes returns every node on a host
func (h *Handler) GetHostComputeNodes(c *fiber.Ctx) error {
	list, err := h.nodes.GetAllByHost(c.UserContext(), c.Params("host"))
	if err != nil {
		return err
	}
	return renderList(c, list)
}

// GetFirstHostComputeNode returns the first node on a host
func (h *Handler) GetFirstHostComputeNode(c *fiber.Ctx) error {
	n, err := h.nodes.GetFirstNodeByHostForOldCompat(c.UserContext(), c.Params("host"))
	if err != nil {
		return err
	}
	return renderNode(c, n)
}

// GetHostNode resolves a node by host and hypervisor hostname
func (h *Handler) GetHostNode(c *fiber.Ctx) error {
	n, err := h.nodes.GetByHostAndNodename(c.UserContext(), c.Params("host"), c.Params("nodename"))
	if err != nil {
		return err
	}
	return renderNode(c, n)
}
