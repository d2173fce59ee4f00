package http

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/LucasKiller/DocLens/internal/config"
	"github.com/LucasKiller/DocLens/internal/llm"
	"github.com/LucasKiller/DocLens/internal/ocr"
	"github.com/LucasKiller/DocLens/internal/services"
	"github.com/LucasKiller/DocLens/internal/storage"
)

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	orchestrator *ocr.Orchestrator
}

func NewServer(cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	fm, err := storage.NewFileManager(cfg.DataDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("init file manager: %w", err)
	}

	store, err := storage.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	provider := ocr.NewTesseractProvider(cfg)
	orchestrator := ocr.NewOrchestrator(store, provider, cfg)

	answerer, err := llm.NewAnswerer(cfg)
	if err != nil {
		return nil, fmt.Errorf("init llm answerer: %w", err)
	}

	authSvc := services.NewAuthService(cfg, store)
	usersSvc := services.NewUsersService(store)
	docsSvc := services.NewDocumentsService(store, fm, answerer, orchestrator)
	reportSvc := services.NewReportService()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger())
	engine.Use(MaxBodySize(cfg.MaxUploadBytes))
	engine.Use(CORS())

	api := NewAPI(cfg, store, fm, authSvc, usersSvc, docsSvc, reportSvc)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg, orchestrator: orchestrator}, nil
}

func (s *Server) Run() error {
	s.orchestrator.Start()
	defer s.orchestrator.Stop()

	addr := fmt.Sprintf(":%s", s.cfg.Port)
	return s.engine.Run(addr)
}
