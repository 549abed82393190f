// Package filecheck 提供对单个目录的文件完整性监控(守护进程核心)。
//
// 核心特点：
//   - 启动时为目录中每个普通文件计算CRC-32基线(不递归)
//   - 定时器、fsnotify事件、SIGUSR1、HTTP请求都会投递重新校验请求，请求不合并
//   - 采用有上限的worker池并发计算校验值(默认55)
//   - 每个周期报告新增(NEW)、删除(DELETED)、内容变化(FAIL)与读错误
//   - 报告经由单一有序通道交给唯一的消费者，每个周期重写一次JSON报告文件
//
// 注意：
//   - 基线文件集合启动后不再变化，之后出现的文件每个周期都报告为NEW
//   - 首次计算中任何文件失败都是致命错误；常规周期中的读错误只记入报告
//   - 被监控目录本身被删除或移走时守护进程以失败退出
//   - 基线不持久化，重启后重新建立
//   - CRC-32只是快速的完整性指纹，不能抵御有意伪造
//
// 推荐使用方式：
//  1. 准备Config(DefaultConfig + LoadFile / ApplyEnv)
//  2. 通过New创建Daemon(此时建立基线文件集合)
//  3. 调用Run(ctx, sigCh)，ctx结束时在当前周期完成后返回
//
// 并发安全：
//   - Registry的文件集合只读；记录字段只由orchestrator(周期戳)或该记录的worker(校验值)写入
//   - 同一时刻最多只有一个周期的报告在渲染
//   - Queue、Pool、Pipeline可被多个goroutine并发使用
package filecheck
