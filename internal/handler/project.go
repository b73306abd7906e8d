package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"canvas-backend/internal/canvas"
	"canvas-backend/internal/document"
	"canvas-backend/internal/logx"
	"canvas-backend/internal/model"
	"canvas-backend/internal/protocol"
	"canvas-backend/internal/room"
)

// ProjectHandler is the REST surface around projects and their canvas
// documents. Live rooms stay authoritative while a session is open; the
// document endpoints read and write the durable row.
type ProjectHandler struct {
	db     *gorm.DB
	docs   document.Store
	router *room.Router
}

func NewProjectHandler(db *gorm.DB, docs document.Store, router *room.Router) *ProjectHandler {
	return &ProjectHandler{db: db, docs: docs, router: router}
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateProject makes a new project owned by the authenticated user.
func (h *ProjectHandler) CreateProject(c *fiber.Ctx) error {
	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Project name is required"})
	}

	userID := int64(0)
	if val := c.Locals("userID"); val != nil {
		userID = val.(int64)
	}

	project := model.Project{
		OwnerID:     userID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.db.Create(&project).Error; err != nil {
		logx.L().Errorw("create project failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create project"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"project": project,
	})
}

// GetProject returns one project by id.
func (h *ProjectHandler) GetProject(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid project id"})
	}

	var project model.Project
	if err := h.db.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Project not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch project"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"project": project,
	})
}

// ListProjects returns the authenticated user's projects, newest first.
func (h *ProjectHandler) ListProjects(c *fiber.Ctx) error {
	userID := int64(0)
	if val := c.Locals("userID"); val != nil {
		userID = val.(int64)
	}

	var projects []model.Project
	if err := h.db.Where("owner_id = ?", userID).Order("created_at DESC").Find(&projects).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch projects"})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"projects": projects,
	})
}

// GetDocument returns the persisted canvas document. If a live room is
// open for the project, its in-memory state wins over the stored row.
func (h *ProjectHandler) GetDocument(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid project id"})
	}

	doc, live := h.liveDocument(projectID)
	if doc == nil {
		doc, err = h.docs.Load(c.Context(), projectID)
		if err != nil {
			logx.L().Errorw("load document failed", "project", projectID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load document"})
		}
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"live":           live,
		"elements":       doc.Elements,
		"canvasSettings": doc.Settings,
	})
}

// ExportDocument serves the document as a downloadable JSON file.
func (h *ProjectHandler) ExportDocument(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid project id"})
	}

	var project model.Project
	if err := h.db.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Project not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch project"})
	}

	doc, _ := h.liveDocument(projectID)
	if doc == nil {
		doc, err = h.docs.Load(c.Context(), projectID)
		if err != nil {
			logx.L().Errorw("load document failed", "project", projectID, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load document"})
		}
	}

	data, err := document.Export(doc, project.Name, project.Description)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to export document"})
	}

	filename := "canvas-" + strconv.FormatInt(projectID, 10) + "-" + time.Now().UTC().Format("20060102") + ".json"
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

// ImportDocument replaces the project document with an uploaded export
// file. If a live room is open the replacement is applied to its state
// and broadcast, so connected editors converge on the imported scene.
func (h *ProjectHandler) ImportDocument(c *fiber.Ctx) error {
	projectID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid project id"})
	}

	file, err := document.Import(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	doc := file.Document()

	if roomID, rm := h.liveRoom(projectID); rm != nil {
		rm.State.ApplyRemoteBulkReplace(doc.Elements)
		rm.State.ApplyRemoteSettings(settingsPatchFrom(doc.Settings))
		if frame, err := protocol.Encode(protocol.EventElementsReplaced, protocol.ElementsReplacedBroadcast{
			RoomID:   roomID,
			Elements: rm.State.Elements(),
		}); err == nil {
			h.router.Broadcast(roomID, frame, "")
		}
	}

	if err := h.docs.Save(c.Context(), projectID, doc); err != nil {
		logx.L().Errorw("import save failed", "project", projectID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save document"})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"elements": len(doc.Elements),
	})
}

// liveDocument snapshots the in-memory state of an open room for the
// project, or returns nil when no room is open.
func (h *ProjectHandler) liveDocument(projectID int64) (*document.Document, bool) {
	_, rm := h.liveRoom(projectID)
	if rm == nil {
		return nil, false
	}
	return &document.Document{
		Elements: rm.State.Elements(),
		Settings: rm.State.Settings(),
	}, true
}

func (h *ProjectHandler) liveRoom(projectID int64) (string, *room.Room) {
	roomID := "project-" + strconv.FormatInt(projectID, 10)
	rm, ok := h.router.Room(roomID)
	if !ok || rm.State == nil {
		return "", nil
	}
	return roomID, rm
}

func settingsPatchFrom(s canvas.Settings) canvas.SettingsPatch {
	return canvas.SettingsPatch{
		Width:           &s.Width,
		Height:          &s.Height,
		BackgroundColor: &s.BackgroundColor,
		GridEnabled:     &s.GridEnabled,
		SnapToGrid:      &s.SnapToGrid,
		GridSize:        &s.GridSize,
	}
}

func parseIDParam(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}
