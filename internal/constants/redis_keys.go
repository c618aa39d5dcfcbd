package constants

// Redis Key 前缀和格式常量
// 统一命名规范: screening:{module}:{entity}[:{unique_id}]
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "screening"

	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"
	// MatchModulePrefix 候选人匹配模块
	MatchModulePrefix = "match"

	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityMD5ToUUID MD5到提交UUID的映射实体
	EntityMD5ToUUID = "md5_to_uuid"
	// EntityResult 匹配结果实体
	EntityResult = "result"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyResumeMD5Set 原始简历内容MD5集合，用于快速去重 (SET)
	// 格式: screening:resume:dedup_set
	KeyResumeMD5Set = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityDedupSet

	// KeyResumeMD5ToUUID MD5到提交UUID的映射 (STRING)
	// 格式: screening:resume:md5_to_uuid:{md5}
	KeyResumeMD5ToUUID = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityMD5ToUUID + ":%s"

	// KeyMatchResult 某岗位的匹配结果缓存 (ZSET, member=匹配结果JSON, score=匹配分)
	// 格式: screening:match:result:{jobHash}
	KeyMatchResult = AppPrefix + ":" + MatchModulePrefix + ":" + EntityResult + ":%s"

	// KeyMatchLock 匹配计算的分布式锁 (STRING)
	// 格式: screening:match:lock:{jobHash}
	KeyMatchLock = AppPrefix + ":" + MatchModulePrefix + ":" + EntityLock + ":%s"
)
