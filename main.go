package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"linkup/app/live"
	"linkup/auth"
	"linkup/components/chatroom"
	"linkup/components/notification"
	"linkup/components/relationship"
	appconfig "linkup/config"
	"linkup/store"
	"linkup/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/juju/ratelimit"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	server         *gin.Engine
	ctx            context.Context
	addr           string
	verbosityLevel int
	configPath     string
	limiter        *ratelimit.Bucket
)

func showHelp() {
	fmt.Printf("Usage:%s {params}\n", os.Args[0])
	fmt.Println("      -a {listen addr}")
	fmt.Println("      -c {config file}")
	fmt.Println("      -h (show help info)")
	fmt.Println("      -v {0-2} (verbosity level, default 0)")
}

func parse() bool {
	flag.StringVar(&addr, "a", "", "address to use")
	flag.StringVar(&configPath, "c", "config.yaml", "config file to use")
	flag.IntVar(&verbosityLevel, "v", -1, "verbosity level, higher value - more logs")
	help := flag.Bool("h", false, "help info")
	flag.Parse()

	if *help {
		return false
	}
	return true
}

func main() {
	if !parse() {
		showHelp()
		os.Exit(-1)
	}

	conf, err := appconfig.Load(configPath)
	if err != nil {
		panic(err)
	}

	// flags beat the config file
	if addr != "" {
		conf.App.Addr = addr
	}
	if verbosityLevel >= 0 {
		conf.App.Verbosity = verbosityLevel
	}

	logger := utils.InitLog(conf.App.Verbosity)
	logger.Info(fmt.Sprintf("verbosity level is: %d", conf.App.Verbosity))

	auth.SetSecret(conf.JWT.SecretKey)

	ctx = context.TODO()

	var records store.Records
	if conf.Mongo.Backend == "memory" {
		logger.Info("using in-memory record store, state will not survive a restart")
		records = store.NewMemRecords()
	} else {
		// Connect to MongoDB
		mongoconn := options.Client().ApplyURI(conf.Mongo.URI)
		mongoclient, err := mongo.NewClient(mongoconn)
		if err != nil {
			panic(err)
		}

		err = mongoclient.Connect(ctx)
		if err != nil {
			panic(err)
		}

		if err := mongoclient.Ping(ctx, readpref.Primary()); err != nil {
			panic(err)
		}

		fmt.Println("MongoDB successfully connected...")

		mongoRecords := store.NewMongoRecords(mongoclient.Database(conf.Mongo.Database))
		if err := mongoRecords.EnsureIndexes(ctx); err != nil {
			panic(err)
		}
		records = mongoRecords
	}

	server = gin.Default()
	server.Use(cors.New(cors.Config{
		AllowOrigins:     conf.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: conf.CORS.AllowCredentials,
	}))
	limiter = ratelimit.NewBucketWithRate(conf.RateLimit.Rate, conf.RateLimit.Capacity)

	fanout := notification.NewFanout(records)
	defer fanout.Stop()

	roomEngine := chatroom.NewEngine(records)
	relationEngine := relationship.NewEngine(records, roomEngine, fanout)

	relationRoute := relationship.NewRelationRoute(relationEngine, logger, limiter)
	relationRoute.InitRouteTo(server)

	roomRoute := chatroom.NewRoomRoute(roomEngine, logger, limiter)
	roomRoute.InitRouteTo(server)

	notificationRoute := notification.NewNotificationRoute(fanout, logger, limiter)
	notificationRoute.InitRouteTo(server)

	wsServer := live.NewWebsocketServer(relationEngine, roomEngine, fanout)
	wsServer.InitRouteTo(server, conf.App.DevMode)
	go wsServer.Run()

	server.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/ping/")
	})
	server.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	server.Run(conf.App.Addr)
}
