package main

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"assetpipe/internal/config"
	"assetpipe/internal/logger"
	database "assetpipe/internal/server/db"
)

// 创建清理历史所在的数据库（仅 mysql），已存在时只做连通性校验
func main() {
	cfg, err := config.LoadDefault()
	if err != nil {
		logger.Fatal().Err(err).Msg("读取配置失败")
	}
	d := cfg.Database
	if d.Driver != "mysql" {
		logger.Fatal().Str("driver", d.Driver).Msg("当前仅支持 mysql")
	}
	if d.User == "" {
		logger.Fatal().Msg("数据库用户未配置")
	}
	if d.PasswordOrEnv() == "" {
		logger.Warn().Msg("password 为空，可在 internal/config/config.yaml 或 DB_PASSWORD 中填写")
	}

	// 连接到服务器级(不选库)，用于检测并创建数据库
	server := d
	server.Name = ""
	serverDSN, err := database.DSN(server)
	if err != nil {
		logger.Fatal().Err(err).Msg("构造 DSN 失败")
	}
	db, err := sql.Open("mysql", serverDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("连接到 MySQL 服务器失败")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("MySQL 服务器不可用")
	}

	var exists int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?", d.Name,
	).Scan(&exists); err != nil {
		logger.Fatal().Err(err).Msg("检查数据库存在性失败")
	}
	if exists == 0 {
		stmt := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci", d.Name)
		if _, err := db.Exec(stmt); err != nil {
			logger.Fatal().Err(err).Msg("创建数据库失败")
		}
		logger.Info().Str("database", d.Name).Msg("数据库不存在，已创建")
	} else {
		logger.Info().Str("database", d.Name).Msg("数据库已存在")
	}

	dsn, err := database.DSN(d)
	if err != nil {
		logger.Fatal().Err(err).Msg("构造 DSN 失败")
	}
	db2, err := sql.Open("mysql", dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("连接到数据库失败")
	}
	defer db2.Close()
	var one int
	if err := db2.QueryRow("SELECT 1").Scan(&one); err != nil {
		logger.Fatal().Err(err).Msg("基础查询失败")
	}
	logger.Info().Str("database", d.Name).Msg("测试完成")
}
