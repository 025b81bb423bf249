package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, store *RedisStore, authService AuthService, users UserRepository) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(), gin.Recovery())
	r.SetHTMLTemplate(loadTemplates())

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := users.Ping(ctx); err != nil {
			logrus.WithError(err).Warn("healthz: credential store")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "database"})
			return
		}
		if err := store.Ping(ctx); err != nil {
			logrus.WithError(err).Warn("healthz: session store")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "component": "redis"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	pages := r.Group("/")
	pages.Use(SessionMiddleware(cfg, store))
	{
		pages.GET("/", func(c *gin.Context) {
			renderRegister(c, http.StatusOK, "", nil, "")
		})

		pages.GET("/register", func(c *gin.Context) {
			renderRegister(c, http.StatusOK, "", nil, "")
		})

		pages.POST("/register", func(c *gin.Context) {
			var form RegistrationForm
			if err := c.ShouldBind(&form); err != nil {
				renderRegister(c, http.StatusBadRequest, "", nil, "Invalid form submission.")
				return
			}

			user, err := authService.Register(c.Request.Context(), form)
			if err != nil {
				var fieldErrs FieldErrors
				if errors.As(err, &fieldErrs) {
					renderRegister(c, http.StatusOK, form.Username, fieldErrs.Messages(), "")
					return
				}
				logFailure(c, "register", err)
				renderFailure(c, statusForFailure(err))
				return
			}

			logrus.WithFields(logrus.Fields{contextRequestIDKey: c.GetString(contextRequestIDKey), "user_id": user.ID}).Info("account registered")
			c.Redirect(http.StatusSeeOther, "/login")
		})

		pages.GET("/login", func(c *gin.Context) {
			if _, ok := sessionFrom(c).DisplayUsername(); ok {
				c.Redirect(http.StatusFound, "/welcome")
				return
			}
			renderLogin(c, http.StatusOK, "", "")
		})

		pages.POST("/login", func(c *gin.Context) {
			var form LoginForm
			if err := c.ShouldBind(&form); err != nil {
				renderLogin(c, http.StatusBadRequest, "", "Invalid form submission.")
				return
			}

			user, err := authService.Authenticate(c.Request.Context(), form.Username, form.Password)
			if err != nil {
				if errors.Is(err, ErrInvalidCredentials) {
					renderLogin(c, http.StatusUnauthorized, form.Username, InvalidCredentialsMessage)
					return
				}
				logFailure(c, "login", err)
				renderFailure(c, statusForFailure(err))
				return
			}

			if err := sessionFrom(c).Establish(user.Username); err != nil {
				logFailure(c, "establish session", err)
				renderFailure(c, statusForFailure(err))
				return
			}
			c.Redirect(http.StatusSeeOther, "/welcome")
		})

		pages.GET("/welcome", RequireLogin(), func(c *gin.Context) {
			c.HTML(http.StatusOK, "welcome.html", pageView{
				Title:    "Welcome",
				Username: c.GetString(contextUserKey),
			})
		})

		pages.GET("/logout", func(c *gin.Context) {
			if err := sessionFrom(c).Destroy(); err != nil {
				logFailure(c, "logout", err)
				renderFailure(c, statusForFailure(err))
				return
			}
			c.Redirect(http.StatusFound, "/login")
		})
	}

	return r
}

func renderRegister(c *gin.Context, status int, username string, fieldErrs map[string]string, message string) {
	if fieldErrs == nil {
		fieldErrs = map[string]string{}
	}
	c.HTML(status, "register.html", pageView{
		Title:    "Sign Up",
		Username: username,
		Errors:   fieldErrs,
		Message:  message,
	})
}

func renderLogin(c *gin.Context, status int, username, message string) {
	c.HTML(status, "login.html", pageView{
		Title:    "Login",
		Username: username,
		Errors:   map[string]string{},
		Message:  message,
	})
}

func logFailure(c *gin.Context, op string, err error) {
	logrus.WithError(err).WithFields(logrus.Fields{
		contextRequestIDKey: c.GetString(contextRequestIDKey),
		"op":                op,
	}).Error("request failed")
}
