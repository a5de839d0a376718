// 手动导入试卷脚本
//
// 试卷 JSON 导入已提供管理接口（POST /api/admin/exams/import），
// 此脚本用于无需启动服务的场景，例如首次部署时批量导入题库。
//
// 用法: go run scripts/import_exam.go <exam.json>

package main

import (
	"english_exam_backend/internal/config"
	"english_exam_backend/internal/repository"
	"english_exam_backend/internal/service"
	"english_exam_backend/pkg/database"
	"english_exam_backend/pkg/logger"
	"encoding/json"
	"log"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("用法: go run scripts/import_exam.go <exam.json>")
	}

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	logger.InitLogger(cfg)

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Redis连接失败: %v", err)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("无法读取试卷文件: %v", err)
	}

	var payload service.ImportedExam
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Fatalf("解析试卷 JSON 失败: %v", err)
	}

	examRepo := repository.NewExamRepository(db, rdb)
	examService := service.NewExamService(examRepo, service.NewStorageService(cfg))

	log.Printf("导入试卷: %s ...", payload.Title)
	exam, err := examService.ImportExam(&payload, 0)
	if err != nil {
		log.Fatalf("导入失败: %v", err)
	}
	log.Printf("完成！试卷 ID: %s（默认未发布，请在管理端发布）", exam.ID)
}
