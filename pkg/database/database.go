package database

import (
	"english_exam_backend/internal/config"
	"english_exam_backend/internal/model"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.Config) (*gorm.DB, error) {
	dbCfg := &cfg.Database
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		dbCfg.User,
		dbCfg.Password,
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.DBName,
		dbCfg.Charset,
		dbCfg.ParseTime,
	)

	logMode := logger.Info
	if cfg.Server.Mode == "release" {
		logMode = logger.Warn
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	// release 模式下默认跳过迁移，除非显式传入 --migrate
	if cfg.Server.Mode == "release" && !cfg.ForceMigrate {
		log.Println("Skipping database migration in release mode")
		return db, nil
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.Exam{},
		&model.ExamChapter{},
		&model.ExamPiece{},
		&model.ExamQuestion{},
		&model.ExamAttempt{},
		&model.ExamAnswer{},
		&model.ExamResult{},
		&model.Subscription{},
		&model.PaymentOrder{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 默认管理员账号（不存在时创建，密码可通过环境变量覆盖）
	var adminCount int64
	db.Model(&model.User{}).Where("role = ?", model.Admin).Count(&adminCount)
	if adminCount == 0 {
		password := os.Getenv("ENGLISH_EXAM_ADMIN_PASSWORD")
		if password == "" {
			password = "admin123456"
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		admin := &model.User{
			Name:     "Administrator",
			Email:    "admin@example.com",
			Password: string(hashed),
			Role:     model.Admin,
			Language: "en",
		}
		if err := db.Create(admin).Error; err != nil {
			return nil, err
		}
		log.Println("Default admin account created: admin@example.com")
	}

	return db, nil
}
