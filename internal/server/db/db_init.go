package db

import (
	"fmt"
	"sort"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"assetpipe/internal/config"
	"assetpipe/internal/models"
)

// DSN 构造适用于 GORM 的数据库连接串
func DSN(d config.Database) (string, error) {
	switch d.Driver {
	case "mysql":
		c := gomysql.NewConfig()
		c.User = d.User
		c.Passwd = d.PasswordOrEnv()
		c.Net = "tcp"
		c.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
		c.DBName = d.Name
		c.ParseTime = true
		c.Loc = time.Local
		c.Params = map[string]string{"charset": "utf8mb4"}
		for k, v := range d.Params {
			switch k {
			case "parseTime":
				c.ParseTime = v == "true"
			case "loc":
				if loc, err := time.LoadLocation(v); err == nil {
					c.Loc = loc
				}
			default:
				c.Params[k] = v
			}
		}
		return c.FormatDSN(), nil
	case "postgres":
		parts := []string{
			"host=" + d.Host,
			fmt.Sprintf("port=%d", d.Port),
			"user=" + d.User,
			"password=" + d.PasswordOrEnv(),
			"dbname=" + d.Name,
		}
		params := map[string]string{"sslmode": "disable", "TimeZone": "UTC"}
		for k, v := range d.Params {
			params[k] = v
		}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+params[k])
		}
		return strings.Join(parts, " "), nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", d.Driver)
	}
}

// OpenGorm 使用 GORM 打开数据库连接
func OpenGorm(d config.Database) (*gorm.DB, error) {
	dsn, err := DSN(d)
	if err != nil {
		return nil, err
	}
	switch d.Driver {
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported driver: %s", d.Driver)
	}
}

// Migrate 建表
func Migrate(g *gorm.DB) error {
	return g.AutoMigrate(&models.CleanupRun{})
}
