package core

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	failureMessage = "Something went wrong. Please try again later."

	// InvalidCredentialsMessage is shown for every failed login.
	InvalidCredentialsMessage = "The username and/or password you entered was not valid."
)

// pageView is the data every template renders from. User-supplied values
// are escaped by html/template.
type pageView struct {
	Title    string
	Username string
	Errors   map[string]string
	Message  string
}

type fieldView struct {
	Label string
	Type  string
	Name  string
	Value string
	Error string
}

func loadTemplates() *template.Template {
	funcs := template.FuncMap{
		"field": func(label, typ, name, value, errMsg string) fieldView {
			return fieldView{Label: label, Type: typ, Name: name, Value: value, Error: errMsg}
		},
	}
	return template.Must(template.New("pages").Funcs(funcs).ParseFS(templatesFS, "templates/*.html"))
}

// renderFailure shows the generic error page without internal details.
func renderFailure(c *gin.Context, status int) {
	c.HTML(status, "error.html", pageView{Title: "Error", Message: failureMessage})
}

func statusForFailure(err error) int {
	if errors.Is(err, ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
