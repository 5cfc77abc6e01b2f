package datastore

import (
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/logger"
)

// mysqlTimeout bounds dialing and single reads and writes.
const mysqlTimeout = 10 * time.Second

// mysqlDSN builds the DSN with proper credential escaping.
func mysqlDSN(s conf.MySQLSettings) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = s.Username
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	cfg.DBName = s.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Timeout = mysqlTimeout
	cfg.ReadTimeout = mysqlTimeout
	cfg.WriteTimeout = mysqlTimeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// OpenMySQL connects to MySQL and migrates violation_history.
func OpenMySQL(s conf.MySQLSettings, opts ...Option) (*GormStore, error) {
	o := buildOptions(opts)

	store, err := newGormStore(mysql.Open(mysqlDSN(s)), conf.DriverMySQL, o)
	if err != nil {
		o.log.Error("failed to open MySQL database",
			logger.String("host", s.Host),
			logger.Int("port", s.Port),
			logger.String("database", s.Database),
			logger.Error(err))
		return nil, err
	}

	o.log.Info("mysql datastore opened",
		logger.String("host", s.Host),
		logger.String("database", s.Database))
	return store, nil
}
