package telemetry

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/engine"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/logger"
)

// ReporterConfig InfluxDB 遥测上报配置
type ReporterConfig struct {
	URL      string        `yaml:"url"`
	Token    string        `yaml:"token"`
	Org      string        `yaml:"org"`
	Bucket   string        `yaml:"bucket"`
	Interval time.Duration `yaml:"interval"` // 上报周期
}

// Reporter 周期性把引擎运行统计写入 InfluxDB。
// 写入走异步 WriteAPI，上报失败只记日志，不影响引擎运行。
type Reporter struct {
	engine   *engine.Engine
	client   influxdb2.Client
	writeAPI api.WriteAPI
	config   ReporterConfig
	log      *logrus.Entry

	ticker *time.Ticker
	stop   chan struct{}
}

// NewReporter 创建遥测上报器
func NewReporter(e *engine.Engine, config ReporterConfig) *Reporter {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}

	client := influxdb2.NewClient(config.URL, config.Token)

	return &Reporter{
		engine:   e,
		client:   client,
		writeAPI: client.WriteAPI(config.Org, config.Bucket),
		config:   config,
		log:      logger.WithComponent("telemetry"),
		stop:     make(chan struct{}),
	}
}

// Start 启动上报循环
func (r *Reporter) Start() {
	r.ticker = time.NewTicker(r.config.Interval)

	// 消费异步写入的错误
	go func() {
		for err := range r.writeAPI.Errors() {
			r.log.WithError(err).Warn("遥测写入失败")
		}
	}()

	go func() {
		for {
			select {
			case <-r.ticker.C:
				r.report(time.Now())
			case <-r.stop:
				return
			}
		}
	}()

	r.log.Infof("遥测上报已启动, 周期 %s", r.config.Interval)
}

// Stop 停止上报并刷新缓冲区
func (r *Reporter) Stop() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
	close(r.stop)

	r.writeAPI.Flush()
	r.client.Close()
}

// report 写入一个统计数据点
func (r *Reporter) report(now time.Time) {
	warming := r.engine.GetWarmingStats()
	cacheStats := r.engine.GetCacheStats()

	point := influxdb2.NewPointWithMeasurement("cache_warming").
		AddField("queue_size", warming.QueueSize).
		AddField("in_flight", warming.InFlight).
		AddField("total_warmed", warming.TotalWarmed).
		AddField("completed", warming.Completed).
		AddField("failed", warming.Failed).
		AddField("dropped", warming.Dropped).
		AddField("patterns_learned", warming.PatternsLearned).
		AddField("entities_tracked", warming.EntitiesTracked).
		AddField("cache_size", cacheStats.Size).
		AddField("cache_hit_rate", cacheStats.HitRate).
		AddField("cache_evictions", cacheStats.Evictions).
		SetTime(now)

	r.writeAPI.WritePoint(point)
}
