package loader

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/snowflakedb/gosnowflake"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/stratus/pkg/errors"
	"github.com/ajitpratap0/stratus/pkg/models"
)

// QueryConfig configures the SQL loaders
type QueryConfig struct {
	DSN   string `mapstructure:"dsn"`
	Query string `mapstructure:"query"`
	// Driver selects the database/sql driver: mysql or snowflake
	Driver string `mapstructure:"driver"`
}

func (c QueryConfig) validate(kind string) error {
	if c.DSN == "" || c.Query == "" {
		return errors.Newf(errors.ErrorTypeValidation, "%s: dsn and query are required", kind)
	}
	return nil
}

// Postgres runs a query through a pgx pool
type Postgres struct {
	cfg QueryConfig
}

func newPostgres(options map[string]interface{}) (Loader, error) {
	var cfg QueryConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate("postgres"); err != nil {
		return nil, err
	}
	if cfg.Driver != "" {
		return nil, errors.New(errors.ErrorTypeValidation, "postgres: driver option is not supported")
	}
	return &Postgres{cfg: cfg}, nil
}

func (l *Postgres) Name() string { return "postgres" }

func (l *Postgres) Load(ctx context.Context) (*models.Table, error) {
	poolConfig, err := pgxpool.ParseConfig(l.cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "postgres: invalid dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "postgres: failed to connect")
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, l.cfg.Query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "postgres: query failed")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	schema, err := models.NewSchema(names...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "postgres: invalid result columns")
	}

	var out []models.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "postgres: failed to read row")
		}
		out = append(out, models.Row(values))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "postgres: row iteration failed")
	}
	return &models.Table{Schema: schema, Rows: out}, nil
}

// SQL runs a query through database/sql with the MySQL or Snowflake driver
type SQL struct {
	cfg QueryConfig
}

func newSQL(options map[string]interface{}) (Loader, error) {
	var cfg QueryConfig
	if err := decodeOptions(options, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate("sql"); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case "mysql", "snowflake":
	default:
		return nil, errors.Newf(errors.ErrorTypeValidation, "sql: driver must be mysql or snowflake, got %q", cfg.Driver)
	}
	return &SQL{cfg: cfg}, nil
}

func (l *SQL) Name() string { return "sql(" + l.cfg.Driver + ")" }

func (l *SQL) Load(ctx context.Context) (*models.Table, error) {
	db, err := sql.Open(l.cfg.Driver, l.cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "sql: failed to open database")
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, l.cfg.Query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "sql: query failed")
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "sql: failed to read columns")
	}
	schema, err := models.NewSchema(names...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "sql: invalid result columns")
	}

	var out []models.Row
	for rows.Next() {
		values := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "sql: failed to scan row")
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, models.Row(values))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "sql: row iteration failed")
	}
	return &models.Table{Schema: schema, Rows: out}, nil
}

// MongoConfig configures the MongoDB loader
type MongoConfig struct {
	URI        string                 `mapstructure:"uri"`
	Database   string                 `mapstructure:"database"`
	Collection string                 `mapstructure:"collection"`
	Filter     map[string]interface{} `mapstructure:"filter"`
	Columns    []string               `mapstructure:"columns"`
	Limit      int64                  `mapstructure:"limit"`
}

// Mongo reads the documents of a collection matching a filter
type Mongo struct {
	cfg MongoConfig
}

func newMongo(opts map[string]interface{}) (Loader, error) {
	var cfg MongoConfig
	if err := decodeOptions(opts, &cfg); err != nil {
		return nil, err
	}
	if cfg.URI == "" || cfg.Database == "" || cfg.Collection == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "mongo: uri, database and collection are required")
	}
	return &Mongo{cfg: cfg}, nil
}

func (l *Mongo) Name() string { return "mongo(" + l.cfg.Database + "." + l.cfg.Collection + ")" }

func (l *Mongo) Load(ctx context.Context) (*models.Table, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(l.cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "mongo: failed to connect")
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}()

	findOpts := options.Find()
	if l.cfg.Limit > 0 {
		findOpts.SetLimit(l.cfg.Limit)
	}
	filter := bson.M{}
	for k, v := range l.cfg.Filter {
		filter[k] = v
	}
	cur, err := client.Database(l.cfg.Database).Collection(l.cfg.Collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "mongo: find failed")
	}
	defer cur.Close(ctx)

	var records []map[string]interface{}
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "mongo: failed to decode document")
		}
		rec := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			if id, ok := v.(primitive.ObjectID); ok {
				v = id.Hex()
			}
			rec[k] = v
		}
		records = append(records, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "mongo: cursor failed")
	}
	return tableFromMaps(records, l.cfg.Columns)
}

// BigQueryConfig configures the BigQuery loader
type BigQueryConfig struct {
	Project         string `mapstructure:"project"`
	Query           string `mapstructure:"query"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// BigQuery runs a standard SQL query
type BigQuery struct {
	cfg BigQueryConfig
}

func newBigQuery(opts map[string]interface{}) (Loader, error) {
	var cfg BigQueryConfig
	if err := decodeOptions(opts, &cfg); err != nil {
		return nil, err
	}
	if cfg.Project == "" || cfg.Query == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "bigquery: project and query are required")
	}
	return &BigQuery{cfg: cfg}, nil
}

func (l *BigQuery) Name() string { return "bigquery(" + l.cfg.Project + ")" }

func (l *BigQuery) Load(ctx context.Context) (*models.Table, error) {
	var clientOpts []option.ClientOption
	if l.cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(l.cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, l.cfg.Project, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "bigquery: failed to create client")
	}
	defer client.Close()

	it, err := client.Query(l.cfg.Query).Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "bigquery: query failed")
	}

	var out []models.Row
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "bigquery: failed to read row")
		}
		row := make(models.Row, len(values))
		for i, v := range values {
			row[i] = v
		}
		out = append(out, row)
	}

	names := make([]string, len(it.Schema))
	for i, f := range it.Schema {
		names[i] = f.Name
	}
	schema, err := models.NewSchema(names...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("bigquery: invalid result schema %v", names))
	}
	return &models.Table{Schema: schema, Rows: out}, nil
}
