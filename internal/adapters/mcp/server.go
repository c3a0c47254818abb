package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/core/ports"
)

const serverName = "readwise"

// Server exposes the book library as read-only MCP tools. All calls act on
// behalf of a single owner.
type Server struct {
	library ports.BookLibrary
	ownerID string
	mcp     *server.MCPServer
}

func NewServer(library ports.BookLibrary, ownerID, version string) *Server {
	s := &Server{
		library: library,
		ownerID: ownerID,
		mcp:     server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("list_books",
		mcp.WithDescription("List uploaded books with their processing status."),
	), s.listBooks)
	s.mcp.AddTool(mcp.NewTool("get_book",
		mcp.WithDescription("Get one book including its AI overview once processing completed."),
		mcp.WithString("book_id", mcp.Required(), mcp.Description("Book identifier")),
	), s.getBook)
	s.mcp.AddTool(mcp.NewTool("list_chapters",
		mcp.WithDescription("List the analysed chapters of a book in reading order, without chapter text."),
		mcp.WithString("book_id", mcp.Required(), mcp.Description("Book identifier")),
	), s.listChapters)
	s.mcp.AddTool(mcp.NewTool("get_chapter",
		mcp.WithDescription("Get the full text and analysis of one chapter."),
		mcp.WithString("book_id", mcp.Required(), mcp.Description("Book identifier")),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based chapter index")),
	), s.getChapter)

	return s
}

// ServeStdio blocks serving the protocol over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

type chapterSummary struct {
	Index    int              `json:"chapter_index"`
	Title    string           `json:"title"`
	Analysis *domain.Analysis `json:"analysis,omitempty"`
}

func (s *Server) listBooks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	books, err := s.library.ListBooks(ctx, s.ownerID)
	if err != nil {
		return toolError("list_books", err), nil
	}
	if books == nil {
		books = []domain.Book{}
	}
	return jsonResult(books)
}

func (s *Server) getBook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookID, err := req.RequireString("book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	book, err := s.library.GetBook(ctx, s.ownerID, bookID)
	if err != nil {
		return toolError("get_book", err), nil
	}
	return jsonResult(book)
}

func (s *Server) listChapters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookID, err := req.RequireString("book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	chapters, err := s.library.ListChapters(ctx, s.ownerID, bookID)
	if err != nil {
		return toolError("list_chapters", err), nil
	}
	out := make([]chapterSummary, 0, len(chapters))
	for _, chapter := range chapters {
		out = append(out, chapterSummary{Index: chapter.Index, Title: chapter.Title, Analysis: chapter.Analysis})
	}
	return jsonResult(out)
}

func (s *Server) getChapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookID, err := req.RequireString("book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	index, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	chapter, err := s.library.GetChapter(ctx, s.ownerID, bookID, index)
	if err != nil {
		return toolError("get_chapter", err), nil
	}
	return jsonResult(chapter)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports domain failures to the client as tool errors; anything
// unexpected is logged and masked.
func toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case domain.IsKind(err, domain.ErrBookNotFound),
		domain.IsKind(err, domain.ErrChapterNotFound),
		domain.IsKind(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError(err.Error())
	default:
		slog.Error("mcp_tool_failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal error")
	}
}
