package roundtrip

import (
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-marshalling/pkg/util/conc"
	"github.com/lk2023060901/danmu-marshalling/pkg/util/merr"
)

// 并发往返的逐条结果日志按分组限流。
const (
	concurrentLogGroup      = "roundtrip.concurrent"
	concurrentLogCredit     = 10
	concurrentLogMaxBalance = 100
)

// RunConcurrently 以至多 parallelism 个协程并发执行互不相关的往返（小于等于 0 时为 GOMAXPROCS），
// 每个往返都有自己的缓冲区与会话。所有往返结束后返回合并的错误；用例中的 panic 被转换为错误。
func (d *Driver) RunConcurrently(parallelism int, tests ...ReadWriteTest) error {
	if len(tests) == 0 {
		return nil
	}
	pool := conc.NewPool[struct{}](parallelism, conc.WithConcealPanic(true))
	defer pool.Release()

	logger := d.Logger().With(zap.Int("tests", len(tests))).
		WithRateGroup(concurrentLogGroup, concurrentLogCredit, concurrentLogMaxBalance)
	futures := lo.Map(tests, func(test ReadWriteTest, i int) *conc.Future[struct{}] {
		return pool.Submit(func() (struct{}, error) {
			err := d.Run(test)
			if err != nil {
				logger.RatedWarn(1, "concurrent round trip failed",
					zap.Int("index", i),
					zap.Int32("code", merr.Code(err)),
					zap.Bool("assertion", merr.IsAssertionError(err)),
					zap.Bool("retriable", merr.IsRetryableErr(err)),
					zap.Error(err))
			} else {
				logger.RatedDebug(1, "concurrent round trip passed", zap.Int("index", i))
			}
			return struct{}{}, err
		})
	})
	return merr.Combine(lo.Map(futures, func(f *conc.Future[struct{}], _ int) error {
		return f.Err()
	})...)
}
