package handlers

import (
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"gemini-playground/internal/middleware"
	"gemini-playground/internal/models"
	"gemini-playground/internal/services"
)

var (
	//go:embed templates/*.html
	tmplFS embed.FS

	//go:embed static
	staticFS embed.FS

	pages = map[string]*template.Template{}
)

type menuItem struct {
	Label string
	Icon  string
	Path  string
}

var menu = []menuItem{
	{Label: "ChatBot", Icon: "💬", Path: "/chat"},
	{Label: "Image Captioning", Icon: "🖼️", Path: "/caption"},
	{Label: "Embed Text", Icon: "🔡", Path: "/embed"},
	{Label: "Ask Me Anything", Icon: "❓", Path: "/ask"},
}

func init() {
	funcs := template.FuncMap{"displayRole": services.DisplayRole}
	for _, name := range []string{"chat", "caption", "embed", "ask"} {
		pages[name] = template.Must(template.New("layout.html").Funcs(funcs).ParseFS(tmplFS, "templates/layout.html", "templates/"+name+".html"))
	}
}

// Static serves the embedded stylesheet and script.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

type playground interface {
	Session(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SetUserName(ctx context.Context, id uuid.UUID, name string) error
	SendChat(ctx context.Context, id uuid.UUID, message string) (string, []models.ChatTurn, error)
	StreamChat(ctx context.Context, id uuid.UUID, message string, onChunk func(string) error) (string, []models.ChatTurn, error)
	Caption(ctx context.Context, id uuid.UUID, image []byte) (string, string, error)
	Embed(ctx context.Context, id uuid.UUID, text string) ([]float32, string, error)
	Ask(ctx context.Context, id uuid.UUID, question string) (string, error)
	Download(ctx context.Context, id uuid.UUID, kind models.ResultKind) (string, error)
}

type pageData struct {
	Active   string
	Menu     []menuItem
	UserName string
	Warning  string
	Error    string
	Success  string

	// ChatBot
	History []models.ChatTurn

	// Image Captioning
	ImageURI template.URL
	Caption  string

	// Embed Text
	Input            string
	EmbeddingPreview string
	Embedding        string

	// Ask Me Anything
	Answer string
}

type PageHandler struct {
	playground     playground
	maxUploadBytes int64
}

func NewPageHandler(p playground, maxUploadBytes int64) *PageHandler {
	return &PageHandler{playground: p, maxUploadBytes: maxUploadBytes}
}

func (h *PageHandler) newPage(r *http.Request, active string) *pageData {
	data := &pageData{Active: active, Menu: menu}
	if sess := middleware.GetSession(r.Context()); sess != nil {
		data.UserName = sess.UserName
		if data.UserName != "" && r.URL.Query().Get("welcome") == "1" {
			data.Success = "Hello, " + data.UserName + "! Enjoy your Gemini AI experience."
		}
	}
	return data
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data *pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages[name].Execute(w, data); err != nil {
		log.Printf("render %s: %v", name, err)
	}
}

func (h *PageHandler) fail(data *pageData, err error) {
	data.Warning, data.Error = userMessage(err)
}

func sessionID(r *http.Request) uuid.UUID {
	if sess := middleware.GetSession(r.Context()); sess != nil {
		return sess.ID
	}
	return uuid.Nil
}

func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

// SetName stores the visitor's name and returns to the view they came from.
func (h *PageHandler) SetName(w http.ResponseWriter, r *http.Request) {
	next := "/chat"
	for _, item := range menu {
		if r.FormValue("next") == item.Path {
			next = item.Path
		}
	}

	if err := h.playground.SetUserName(r.Context(), sessionID(r), r.FormValue("name")); err != nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, next+"?welcome=1", http.StatusSeeOther)
}

func (h *PageHandler) ChatPage(w http.ResponseWriter, r *http.Request) {
	data := h.newPage(r, "/chat")
	if sess := middleware.GetSession(r.Context()); sess != nil {
		data.History = sess.History
	}
	h.render(w, "chat", data)
}

func (h *PageHandler) ChatSend(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.playground.SendChat(r.Context(), sessionID(r), r.FormValue("message"))
	if err == nil {
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}

	data := h.newPage(r, "/chat")
	if sess, serr := h.playground.Session(r.Context(), sessionID(r)); serr == nil {
		data.History = sess.History
	}
	h.fail(data, err)
	h.render(w, "chat", data)
}

func (h *PageHandler) CaptionPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "caption", h.newPage(r, "/caption"))
}

func (h *PageHandler) CaptionGenerate(w http.ResponseWriter, r *http.Request) {
	data := h.newPage(r, "/caption")

	image, err := readUpload(w, r, "image", h.maxUploadBytes)
	if err != nil {
		h.fail(data, err)
		h.render(w, "caption", data)
		return
	}

	caption, mimeType, err := h.playground.Caption(r.Context(), sessionID(r), image)
	if err != nil {
		h.fail(data, err)
		h.render(w, "caption", data)
		return
	}

	data.ImageURI = template.URL("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image))
	data.Caption = caption
	h.render(w, "caption", data)
}

func (h *PageHandler) EmbedPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "embed", h.newPage(r, "/embed"))
}

func (h *PageHandler) EmbedGenerate(w http.ResponseWriter, r *http.Request) {
	data := h.newPage(r, "/embed")
	data.Input = r.FormValue("text")

	_, formatted, err := h.playground.Embed(r.Context(), sessionID(r), data.Input)
	if err != nil {
		h.fail(data, err)
		h.render(w, "embed", data)
		return
	}

	data.Embedding = formatted
	data.EmbeddingPreview = services.EmbeddingPreview(formatted)
	h.render(w, "embed", data)
}

func (h *PageHandler) AskPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "ask", h.newPage(r, "/ask"))
}

func (h *PageHandler) AskGenerate(w http.ResponseWriter, r *http.Request) {
	data := h.newPage(r, "/ask")
	data.Input = r.FormValue("question")

	answer, err := h.playground.Ask(r.Context(), sessionID(r), data.Input)
	if err != nil {
		h.fail(data, err)
		h.render(w, "ask", data)
		return
	}

	data.Answer = answer
	h.render(w, "ask", data)
}

// Download serves the last rendered result of a view as a text attachment.
func (h *PageHandler) Download(kind models.ResultKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		text, err := h.playground.Download(r.Context(), sessionID(r), kind)
		if err != nil {
			http.Error(w, "Nothing to download yet", http.StatusNotFound)
			return
		}
		writeAttachment(w, kind, text)
	}
}

// EndSession discards the session; the next request starts a fresh one.
func (h *PageHandler) EndSession(sessions *middleware.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sessions.End(w, r); err != nil {
			log.Printf("end session: %v", err)
		}
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
	}
}

func writeAttachment(w http.ResponseWriter, kind models.ResultKind, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+kind.FileName()+`"`)
	io.WriteString(w, text)
}

// readUpload reads a multipart file field, capped at limit bytes.
func readUpload(w http.ResponseWriter, r *http.Request, field string, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var mbErr *http.MaxBytesError
		if errors.As(err, &mbErr) {
			return nil, mbErr
		}
		if strings.Contains(err.Error(), "request body too large") {
			return nil, &http.MaxBytesError{Limit: limit}
		}
		return nil, &services.ValidationError{Fields: map[string]string{field: "Please choose an image to upload."}}
	}

	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, &services.ValidationError{Fields: map[string]string{field: "Please choose an image to upload."}}
	}
	defer file.Close()

	return io.ReadAll(file)
}
