package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// AnalysisModulePrefix 简历分析模块
	AnalysisModulePrefix = "analysis"

	// EntityResult 分析结果实体
	EntityResult = "result"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityCounter 计数实体
	EntityCounter = "counter"

	// KeyAnalysisResult 分析结果缓存 (STRING, JSON)
	// 格式: app:analysis:result:{taxonomyFingerprint}:{textMD5}
	KeyAnalysisResult = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityResult + ":%s:%s"

	// KeyAnalysisLock 相同文本并发分析的互斥锁 (STRING)
	// 格式: app:analysis:lock:{taxonomyFingerprint}:{textMD5}
	KeyAnalysisLock = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityLock + ":%s:%s"

	// KeyAnalysisCounter 已完成分析总数 (STRING, INCR)
	// 格式: app:analysis:counter
	KeyAnalysisCounter = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityCounter
)
