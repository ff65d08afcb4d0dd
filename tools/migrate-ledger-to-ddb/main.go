// Command migrate-ledger-to-ddb copies menu inventory rows from Postgres into
// the DynamoDB ledger table before switching LEDGER_BACKEND to dynamodb.
// Run it while the menu service is stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	awspkg "github.com/AliakbarMohammadi/catring-313-sub001/pkg/aws"
	ddb "github.com/AliakbarMohammadi/catring-313-sub001/pkg/dynamodb"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/database"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/repository"
	"go.uber.org/zap"
)

func main() {
	var from, to, table string
	flag.StringVar(&from, "from", "", "first menu date to copy (YYYY-MM-DD), empty for all")
	flag.StringVar(&to, "to", "", "last menu date to copy (YYYY-MM-DD), empty for all")
	flag.StringVar(&table, "table", os.Getenv("DDB_TABLE_MENU_LEDGER"), "DynamoDB table name")
	flag.Parse()
	if table == "" {
		table = "MenuLedger"
	}

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := database.PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		DBName:   os.Getenv("POSTGRES_DB"),
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     getEnv("POSTGRES_PORT", "5432"),
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		TimeZone: getEnv("POSTGRES_TIMEZONE", "Asia/Kolkata"),
	}
	db, err := database.ConnectPostgres(cfg, log)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer database.Close(db)

	q := db.Model(&models.InventoryRecord{}).Order("menu_date, food_item_id")
	if from != "" {
		q = q.Where("menu_date >= ?", from)
	}
	if to != "" {
		q = q.Where("menu_date <= ?", to)
	}
	var recs []models.InventoryRecord
	if err := q.Find(&recs).Error; err != nil {
		log.Fatal("load inventory", zap.Error(err))
	}

	ctx := context.Background()
	awsCfg, err := awspkg.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatal("aws config", zap.Error(err))
	}
	dst := repository.NewDynamoLedgerRepository(ddb.NewClientFromConfig(awsCfg), table)

	copied, failed := migrate(ctx, recs, dst, log)
	fmt.Printf("Migration complete. copied=%d failed=%d\n", copied, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
