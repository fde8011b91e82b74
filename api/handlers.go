// Package api implements the task/notification REST contract over an
// in-memory store. It is the service the engine is developed and tested
// against; every response uses the { success, data, message } envelope.
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"tasklens/domain"
)

const requestBodyMaxSize = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Register wires all routes on the provided Echo instance.
func Register(e *echo.Echo, store *Store, auth *Auth, logger *log.Logger) {
	e.POST("/api/v1/auth/register", register(store, auth, logger))
	e.POST("/api/v1/auth/login", login(store, auth, logger))
	e.GET("/api/v1/auth/me", me(store, auth))

	e.GET("/api/v1/tasks", listTasks(store, auth, logger))
	e.POST("/api/v1/tasks", createTask(store, auth, logger))
	e.PUT("/api/v1/tasks/:id", updateTask(store, auth))
	e.DELETE("/api/v1/tasks/:id", deleteTask(store, auth))

	e.GET("/api/v1/notifications", listNotifications(store, auth))
	e.PATCH("/api/v1/notifications/read-all", markAllRead(store, auth))
	e.PATCH("/api/v1/notifications/:id/read", markOneRead(store, auth))

	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, envelope{Success: false, Message: message})
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func userID(c echo.Context, auth *Auth) (string, bool) {
	id, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return "", false
	}
	return id, true
}

type credentialsBody struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func register(store *Store, auth *Auth, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body credentialsBody
		if err := decodeBody(c, &body); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}
		if body.Email == "" || body.Password == "" {
			return fail(c, http.StatusBadRequest, "email and password are required")
		}
		id, err := store.CreateUser(body.Name, body.Email, body.Password)
		if err == ErrEmailTaken {
			return fail(c, http.StatusConflict, err.Error())
		}
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "registration failed")
		}
		token, err := auth.IssueToken(id)
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "registration failed")
		}
		logger.WithFields(log.Fields{"user": id}).Info("account registered")
		return respond(c, http.StatusCreated, authResponse{Token: token, ID: id, Name: body.Name, Email: body.Email})
	}
}

func login(store *Store, auth *Auth, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body credentialsBody
		if err := decodeBody(c, &body); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}
		id, err := store.Authenticate(body.Email, body.Password)
		if err != nil {
			return fail(c, http.StatusUnauthorized, ErrBadCredentials.Error())
		}
		token, err := auth.IssueToken(id)
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "login failed")
		}
		name, email, _ := store.User(id)
		logger.WithFields(log.Fields{"user": id}).Info("session issued")
		return respond(c, http.StatusOK, authResponse{Token: token, ID: id, Name: name, Email: email})
	}
}

func me(store *Store, auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := userID(c, auth)
		if !ok {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}
		name, email, ok := store.User(id)
		if !ok {
			return fail(c, http.StatusUnauthorized, "unknown user")
		}
		return respond(c, http.StatusOK, map[string]string{"id": id, "name": name, "email": email})
	}
}

type taskBody struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
	DueDate     *string `json:"dueDate,omitempty"`
}

func listTasks(store *Store, auth *Auth, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		id, ok := userID(c, auth)
		if !ok {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}
		tasks := store.Tasks(id)
		logger.WithFields(log.Fields{
			"route":    "/api/v1/tasks",
			"user":     id,
			"returned": len(tasks),
			"total_ms": float64(time.Since(start)) / float64(time.Millisecond),
		}).Debug("tasks.request")
		return respond(c, http.StatusOK, tasks)
	}
}

func createTask(store *Store, auth *Auth, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := userID(c, auth)
		if !ok {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}
		var body taskBody
		if err := decodeBody(c, &body); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}
		if body.Title == nil || *body.Title == "" {
			return fail(c, http.StatusBadRequest, "title is required")
		}
		draft := domain.Task{Title: *body.Title}
		if body.Description != nil {
			draft.Description = *body.Description
		}
		if body.Priority != nil {
			draft.Priority = *body.Priority
		}
		if body.Status != nil {
			draft.Status = *body.Status
		}
		if body.DueDate != nil {
			draft.DueDate = *body.DueDate
		}
		task := store.CreateTask(id, draft, c.Request().Header.Get("X-Idempotency-Key"))
		logger.WithFields(log.Fields{"user": id, "task": task.ID}).Info("task created")
		return respond(c, http.StatusCreated, task)
	}
}

func updateTask(store *Store, auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := userID(c, auth)
		if !ok {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}
		var body taskBody
		if err := decodeBody(c, &body); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}
		if body.Title != nil && *body.Title == "" {
			return fail(c, http.StatusBadRequest, "title cannot be empty")
		}
		task, found := store.UpdateTask(id, c.Param("id"), func(t *domain.Task) {
			if body.Title != nil {
				t.Title = *body.Title
			}
			if body.Description != nil {
				t.Description = *body.Description
			}
			if body.Priority != nil {
				t.Priority = *body.Priority
			}
			if body.Status != nil {
				t.Status = *body.Status
			}
			if body.DueDate != nil {
				t.DueDate = *body.DueDate
			}
		})
		if !found {
			return fail(c, http.StatusNotFound, "task not found")
		}
		return respond(c, http.StatusOK, task)
	}
}

func deleteTask(store *Store, auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := userID(c, auth)
		if !ok {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}
		if !store.DeleteTask(id, c.Param("id")) {
			return fail(c, http.StatusNotFound, "task not found")
		}
		return respond(c, http.StatusOK, nil)
	}
}

func listNotifications(store *Store, auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := userID(c, auth)
		if !ok {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}
		return respond(c, http.StatusOK, store.Notifications(id))
	}
}

func markAllRead(store *Store, auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := userID(c, auth)
		if !ok {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}
		store.MarkAllRead(id)
		return respond(c, http.StatusOK, nil)
	}
}

func markOneRead(store *Store, auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := userID(c, auth)
		if !ok {
			return fail(c, http.StatusUnauthorized, "invalid token")
		}
		if !store.MarkRead(id, c.Param("id")) {
			return fail(c, http.StatusNotFound, "notification not found")
		}
		return respond(c, http.StatusOK, nil)
	}
}
