package db

import (
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/indexsupply/golden-axe/types"
	"github.com/indexsupply/golden-axe/utils"
)

//go:embed schema/pgsql/*.sql
var EmbedPgsqlSchema embed.FS

var WriterDb *sqlx.DB
var ReaderDb *sqlx.DB

var logger = logrus.StandardLogger().WithField("module", "db")

func checkDbConn(dbConn *sqlx.DB, dataBaseName string) {
	// The golang sql driver does not properly implement PingContext
	// therefore we use a timer to catch db connection timeouts
	dbConnectionTimeout := time.NewTimer(15 * time.Second)

	go func() {
		<-dbConnectionTimeout.C
		logger.Fatalf("timeout while connecting to %s", dataBaseName)
	}()

	err := dbConn.Ping()
	if err != nil {
		logger.Fatalf("unable to Ping %s: %s", dataBaseName, err)
	}

	dbConnectionTimeout.Stop()
}

func mustInitPgsql(writer *types.PgsqlDatabaseConfig, reader *types.PgsqlDatabaseConfig) (*sqlx.DB, *sqlx.DB) {
	if writer.MaxOpenConns == 0 {
		writer.MaxOpenConns = 50
	}
	if writer.MaxIdleConns == 0 {
		writer.MaxIdleConns = 10
	}
	if writer.MaxOpenConns < writer.MaxIdleConns {
		writer.MaxIdleConns = writer.MaxOpenConns
	}

	if reader.MaxOpenConns == 0 {
		reader.MaxOpenConns = 50
	}
	if reader.MaxIdleConns == 0 {
		reader.MaxIdleConns = 10
	}
	if reader.MaxOpenConns < reader.MaxIdleConns {
		reader.MaxIdleConns = reader.MaxOpenConns
	}

	logger.Infof("initializing pgsql writer connection to %v with %v/%v conn limit", writer.Host, writer.MaxIdleConns, writer.MaxOpenConns)
	dbConnWriter, err := sqlx.Open("pgx", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", writer.Username, writer.Password, writer.Host, writer.Port, writer.Name))
	if err != nil {
		utils.LogFatal(err, "error getting pgsql writer database", 0)
	}

	checkDbConn(dbConnWriter, "database")
	dbConnWriter.SetConnMaxIdleTime(time.Second * 30)
	dbConnWriter.SetConnMaxLifetime(time.Second * 60)
	dbConnWriter.SetMaxOpenConns(writer.MaxOpenConns)
	dbConnWriter.SetMaxIdleConns(writer.MaxIdleConns)

	logger.Infof("initializing pgsql reader connection to %v with %v/%v conn limit", reader.Host, reader.MaxIdleConns, reader.MaxOpenConns)
	dbConnReader, err := sqlx.Open("pgx", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", reader.Username, reader.Password, reader.Host, reader.Port, reader.Name))
	if err != nil {
		utils.LogFatal(err, "error getting pgsql reader database", 0)
	}

	checkDbConn(dbConnReader, "read replica database")
	dbConnReader.SetConnMaxIdleTime(time.Second * 30)
	dbConnReader.SetConnMaxLifetime(time.Second * 60)
	dbConnReader.SetMaxOpenConns(reader.MaxOpenConns)
	dbConnReader.SetMaxIdleConns(reader.MaxIdleConns)
	return dbConnWriter, dbConnReader
}

func MustInitDB() {
	readerConfig := &utils.Config.Database.Pgsql
	writerConfig := &utils.Config.Database.PgsqlWriter
	if writerConfig.Host == "" {
		writerConfig = readerConfig
	}
	WriterDb, ReaderDb = mustInitPgsql(writerConfig, readerConfig)
}

func MustCloseDB() {
	err := WriterDb.Close()
	if err != nil {
		logger.Errorf("Error closing writer db connection: %v", err)
	}
	err = ReaderDb.Close()
	if err != nil {
		logger.Errorf("Error closing reader db connection: %v", err)
	}
}

func ApplyEmbeddedDbSchema(version int64) error {
	goose.SetBaseFS(EmbedPgsqlSchema)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	schemaDirectory := "schema/pgsql"
	if version == -2 {
		if err := goose.Up(WriterDb.DB, schemaDirectory); err != nil {
			return err
		}
	} else if version == -1 {
		if err := goose.UpByOne(WriterDb.DB, schemaDirectory); err != nil {
			return err
		}
	} else {
		if err := goose.UpTo(WriterDb.DB, schemaDirectory, version); err != nil {
			return err
		}
	}

	return nil
}
